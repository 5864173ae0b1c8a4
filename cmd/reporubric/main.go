package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/assessor"
	"github.com/seanblong/reporubric/internal/config"
	"github.com/seanblong/reporubric/internal/source"
	"github.com/spf13/pflag"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("reporubric", pflag.ExitOnError)
	selectOnly := fs.Bool("select-only", false, "Print the file selection without assessing")
	paths := fs.StringSlice("paths", nil, "Assess exactly these paths instead of the heuristic selection")
	extra := fs.StringSlice("extra", nil, "Paths added to the heuristic selection")
	output := fs.StringP("output", "o", "", "Write JSON to this file instead of stdout")

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s': %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	target := resolveTarget(fs.Args(), cfg)
	if cfg.GitRef != "" && !source.IsLocal(target) {
		dir, err := cloneToTemp(target, cfg.GitRef, cfg.GithubToken)
		if err != nil {
			log.Fatal().Err(err).Msg("clone failed")
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn().Err(err).Str("dir", dir).Msg("failed to remove temp directory")
			}
		}()
		target = dir
	}

	ctx := context.Background()
	svc, closeStore, err := assessor.Setup(ctx, cfg, source.NewRouter(cfg.GithubToken))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer closeStore()

	var out any
	if *selectOnly {
		sel, err := svc.SelectFiles(ctx, target)
		if err != nil {
			log.Fatal().Err(err).Msg("selection failed")
		}
		out = sel
	} else {
		res, err := svc.Assess(ctx, assessor.Request{RepoURL: target, ExtraPaths: *extra, SelectedPaths: *paths})
		if err != nil {
			log.Fatal().Err(err).Msg("assessment failed")
		}
		for _, w := range res.Warnings {
			log.Warn().Msg(w)
		}
		log.Info().Str("assessment", res.AssessmentID).Bool("cached", res.Cached).Msg("assessment complete")
		out = res.Rubric
	}

	w := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal().Err(err).Msg("open output")
		}
		defer f.Close()
		w = f
	}
	if err := writeJSON(w, out); err != nil {
		log.Fatal().Err(err).Msg("write output")
	}
}

// resolveTarget picks the repository to assess: the first positional
// argument, then the configured repo URL, then the configured root.
func resolveTarget(args []string, cfg config.Specification) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	if cfg.RepoURL != "" {
		return cfg.RepoURL
	}
	return cfg.RepoRoot
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cloneToTemp makes a shallow checkout of ref so revisions other than the
// default branch can be assessed from disk.
func cloneToTemp(repoURL, ref, token string) (string, error) {
	dir, err := os.MkdirTemp("", "reporubric-*")
	if err != nil {
		return "", err
	}
	url := cloneURL(repoURL, token)
	cmd := exec.Command("git", "clone", "--depth", "1", "--branch", ref, url, dir)
	cmd.Stdout, cmd.Stderr = os.Stderr, os.Stderr
	if err := cmd.Run(); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove temp directory")
		}
		return "", fmt.Errorf("git clone: %w", err)
	}
	return dir, nil
}

func cloneURL(repoURL, token string) string {
	url := repoURL
	if strings.HasPrefix(url, "github.com/") {
		url = "https://" + url
	}
	if token != "" && strings.HasPrefix(url, "https://") {
		url = "https://" + token + ":x-oauth-basic@" + strings.TrimPrefix(url, "https://")
	}
	return url
}
