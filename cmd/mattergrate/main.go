// Package main contains the entrypoint for the mattergrate CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mattergrate/mattergrate/internal/config"
	"github.com/mattergrate/mattergrate/internal/database"
	"github.com/mattergrate/mattergrate/internal/identity"
	"github.com/mattergrate/mattergrate/internal/importer"
	"github.com/mattergrate/mattergrate/internal/logger"
	"github.com/mattergrate/mattergrate/internal/mattermost"
	"github.com/mattergrate/mattergrate/internal/rocketchat"
	"github.com/mattergrate/mattergrate/internal/service"
)

const usage = `Usage: mattergrate [flags] <channel-url>

Migrates the history of a Mattermost channel into a Rocket.Chat room,
incrementally: repeated invocations fetch only what has not been
transferred yet.

The channel URL is the one shown in the browser while viewing the channel:
  https://mattermost.example.com/myteam/channels/general

Flags:
`

// channelURLPattern matches scheme://host/{team}/channels/{channel}.
var channelURLPattern = regexp.MustCompile(`^(https?://[^/]+)/([^/]+)/channels/([^/]+)/?$`)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, clients, importer),
// executes the requested mode, and returns an exit code (0 for success,
// 1 for failure).
func run(ctx context.Context) int {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	roomID := flag.String("room", "", "Target Rocket.Chat room ID")
	username := flag.String("user", "", "Mattermost username (credentials auth mode)")
	password := flag.String("pass", "", "Mattermost password (credentials auth mode)")
	watch := flag.Bool("watch", false, "Keep running, re-importing on the configured schedule")
	list := flag.Bool("list", false, "List stored import checkpoints and exit")
	flag.Parse()

	// .env is optional; real environment variables win either way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.LogJSON)
	log.Info("Logger initialized", "level", cfg.LogLevel, "json", cfg.LogJSON)

	db, err := database.NewDB(cfg.DBPath)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.DBPath, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	if *list {
		return listCheckpoints(ctx, store, log)
	}

	if flag.NArg() < 1 {
		flag.Usage()
		return 1
	}
	if *roomID == "" {
		log.Error("Missing required -room flag")
		return 1
	}

	baseURL, teamName, channelName, err := parseChannelURL(flag.Arg(0))
	if err != nil {
		log.Error("Invalid channel URL", "url", flag.Arg(0), "error", err)
		return 1
	}
	if cfg.SourceBaseURL != "" {
		baseURL = cfg.SourceBaseURL
	}

	source := mattermost.NewClient(baseURL,
		mattermost.WithTimeout(cfg.SourceTimeout),
		mattermost.WithPageSize(cfg.SourcePageSize),
		mattermost.WithLogger(log),
	)

	switch cfg.SourceAuthMode {
	case config.AuthModeAdminToken:
		source.SetToken(cfg.SourceAdminToken)
	case config.AuthModeCredentials:
		if *username == "" || *password == "" {
			log.Error("Credentials auth mode requires -user and -pass flags")
			return 1
		}
		if err := source.Login(ctx, *username, *password); err != nil {
			log.Error("Failed to authenticate with Mattermost", "error", err)
			return 1
		}
		log.Info("Authenticated with Mattermost", "user", *username)
	}

	target := rocketchat.NewClient(cfg.TargetBaseURL,
		cfg.TargetUserID, cfg.TargetAuthToken, cfg.TargetUsername,
		rocketchat.WithTimeout(cfg.TargetTimeout),
		rocketchat.WithLogger(log),
	)

	newResolver := func() importer.Resolver {
		return identity.NewResolver(target, cfg.ImportUserMapping, cfg.ImportMatchBy, log)
	}

	imp := importer.New(source, target, store, newResolver, importer.Options{
		MessageDelay:  cfg.ImportMessageDelay,
		ProgressEvery: cfg.ImportProgressEvery,
	}, log)

	job := importer.Job{
		RoomID:      *roomID,
		TeamName:    teamName,
		ChannelName: channelName,
	}

	schedule := ""
	if *watch {
		schedule = cfg.WatchSchedule
		if schedule == "" {
			log.Error("Watch mode requires watch_schedule in configuration")
			return 1
		}
	}

	svc := service.New(imp, job, schedule, log)

	log.Info("Starting migration", "team", teamName, "channel", channelName, "room_id", *roomID)
	runErr := svc.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Migration failed", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Migration finished.")
	return 0
}

// parseChannelURL splits a browser channel URL into base URL, team name,
// and channel name.
func parseChannelURL(raw string) (baseURL, team, channel string, err error) {
	m := channelURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", "", fmt.Errorf("expected scheme://host/team/channels/channel, got %q", raw)
	}
	return m[1], m[2], m[3], nil
}

// listCheckpoints prints every stored checkpoint, most recently run first.
func listCheckpoints(ctx context.Context, store database.Store, log *slog.Logger) int {
	cps, err := store.ListCheckpoints(ctx)
	if err != nil {
		log.Error("Failed to list checkpoints", "error", err)
		return 1
	}

	if len(cps) == 0 {
		fmt.Println("No imports recorded yet.")
		return 0
	}

	for _, cp := range cps {
		fmt.Printf("%s/%s -> room %s: %d messages, last run %s (last post %s)\n",
			cp.TeamName, cp.ChannelName, cp.RoomID,
			cp.TotalImported,
			cp.LastRunAt.Local().Format(time.RFC3339),
			time.UnixMilli(cp.LastPostAt).Local().Format(time.RFC3339))
	}
	return 0
}
