package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"gopkg.in/yaml.v3"
)

func main() {
	var file, dir string
	flag.StringVar(&file, "file", "", "Exam definition YAML file")
	flag.StringVar(&dir, "dir", "", "Directory of exam definition YAML files")
	flag.Parse()

	paths, err := collect(file, dir)
	if err != nil || len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: seed-exam -file exam.yaml | -dir seeds/")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examService := service.NewExamService(repository.NewExamRepository(pool), rdb, log)

	failed := 0
	for _, path := range paths {
		def, err := load(path)
		if err == nil {
			err = examService.Save(ctx, def)
		}

		var fields validator.FieldErrors
		switch {
		case errors.As(err, &fields):
			failed++
			for field, msg := range fields {
				log.Error().Str("file", path).Str("field", field).Msg(msg)
			}
		case err != nil:
			failed++
			log.Error().Err(err).Str("file", path).Msg("Seed failed")
		default:
			log.Info().
				Str("file", path).
				Str("exam_id", def.ID).
				Int("questions", def.QuestionCount()).
				Msg("Exam seeded")
		}
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Int("total", len(paths)).Msg("Seeding incomplete")
	}
}

func collect(file, dir string) ([]string, error) {
	if file != "" {
		return []string{file}, nil
	}
	if dir == "" {
		return nil, errors.New("no input")
	}
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// load decodes a definition. A missing id is generated so the file can be
// seeded once and then referenced by the printed id.
func load(path string) (*model.ExamDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var def model.ExamDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	} else if _, err := uuid.Parse(def.ID); err != nil {
		return nil, fmt.Errorf("exam id %q: %w", def.ID, err)
	}
	return &def, nil
}
