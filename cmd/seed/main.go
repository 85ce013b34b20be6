package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/openacademy-api/internal/repository"
	"github.com/noah-isme/openacademy-api/internal/seed"
	"github.com/noah-isme/openacademy-api/internal/service"
	"github.com/noah-isme/openacademy-api/pkg/config"
	"github.com/noah-isme/openacademy-api/pkg/database"
	"github.com/noah-isme/openacademy-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	path := flag.String("file", cfg.Seed.File, "demo data file")
	flag.Parse()

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	f, err := os.Open(*path)
	if err != nil {
		logr.Fatal("failed to open seed file", zap.String("file", *path), zap.Error(err))
	}
	defer f.Close()

	doc, err := seed.Decode(f)
	if err != nil {
		logr.Fatal("invalid seed file", zap.String("file", *path), zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	validate := validator.New()
	tx := database.NewTransactor(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	partnerRepo := repository.NewPartnerRepository(db)

	sessionSvc := service.NewSessionService(service.SessionServiceParams{
		Tx:        tx,
		Sessions:  sessionRepo,
		Courses:   courseRepo,
		Partners:  partnerRepo,
		Validator: validate,
		Logger:    logr,
	})
	courseSvc := service.NewCourseService(tx, courseRepo, sessionRepo, partnerRepo, nil, validate, logr)
	partnerSvc := service.NewPartnerService(service.PartnerServiceParams{
		Tx:        tx,
		Partners:  partnerRepo,
		Sessions:  sessionRepo,
		Courses:   courseRepo,
		Attendees: sessionSvc,
		Validator: validate,
		Logger:    logr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var res seed.Result
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		res, err = seed.NewLoader(partnerSvc, courseSvc, sessionSvc, logr).Load(ctx, doc)
		return err
	})
	if err != nil {
		logr.Fatal("seed failed", zap.Error(err))
	}
	logr.Info("seed complete",
		zap.Int("partners", res.Partners),
		zap.Int("courses", res.Courses),
		zap.Int("sessions", res.Sessions),
		zap.Int("warnings", res.Warnings),
	)
}
