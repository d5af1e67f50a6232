package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rivo/tview"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/nrg-watch/internal/bt"
	"github.com/lowaak/nrg-watch/internal/config"
	"github.com/lowaak/nrg-watch/internal/dashboard"
	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/logging"
	"github.com/lowaak/nrg-watch/internal/profilesync"
	"github.com/lowaak/nrg-watch/internal/sensors"
	"github.com/lowaak/nrg-watch/internal/store"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "nrg-watch: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	output, err := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer output.Close()
	logger := output.Logger
	logger.Printf("NRG Watch starting (source=%s)", cfg.Sensors.Source)

	profiles, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer profiles.Close()

	profile, onboarded, err := profiles.LoadOrOnboard(cfg.DefaultProfile())
	if err != nil {
		return err
	}
	if onboarded {
		logger.Printf("Welcome! Saved a new athlete profile (%.1f kg, %d kcal gels)", profile.BodyMassKg, profile.GelCalorieThresholdKcal)
	}

	controllerConfig := cfg.ControllerConfig(tracker.RealClock())
	controllerConfig.Profile = profile
	session := tracker.NewController(controllerConfig, logger)
	defer session.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, closeSource, err := newSource(cfg, profiles, logger)
	if err != nil {
		return err
	}
	defer closeSource()
	detach := sensors.Attach(source, session)
	defer detach()
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start %s source: %w", source.Name(), err)
	}
	defer source.Stop()

	var redisClient *redis.Client
	if cfg.Sync.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Sync.RedisAddr,
			Password: cfg.Sync.RedisPassword,
		})
		defer redisClient.Close()
	}

	subscriber := profilesync.NewSubscriber(redisClient, cfg.Sync.DeviceID, func(update tracker.ProfileUpdate) {
		session.UpdateAthleteProfile(update)
		if _, err := profiles.ApplyUpdate(update); err != nil {
			logger.Printf("Cannot save profile update: %v", err)
		}
	}, logger)
	if err := subscriber.Start(ctx); err != nil {
		// the watch works without the companion
		logger.Printf("Companion sync unavailable: %v", err)
	}
	defer subscriber.Stop()

	publisher := profilesync.NewPublisher(redisClient, cfg.Sync.DeviceID, logger)
	stopForward := publisher.Forward(ctx, session)
	defer stopForward()

	model := dashboard.NewModel(logger, tracker.RealClock(), cfg.Session.UndoWindow, output.UILines())
	defer model.Shutdown()
	controller := dashboard.NewController(model, session,
		tracker.StartOptions{KeepLastSupplement: cfg.Session.KeepLastSupplement}, logger)
	defer controller.Shutdown()
	ui := dashboard.NewDashboard(dashboard.NewDashboardArg{
		View:       dashboard.NewTviewView(logger, tview.NewApplication()),
		Model:      model,
		Controller: controller,
		Logger:     logger,
	})
	defer ui.Shutdown()

	if err := ui.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	if session.IsRunning() {
		if summary, err := session.StopSession(); err == nil {
			logger.Printf("Run %s stopped on exit after %s", summary.SessionID, tracker.FormatElapsed(summary.ElapsedSeconds))
		}
	}
	logger.Println("NRG Watch stopped")
	return nil
}

// newSource builds the configured sensor source. The returned close function
// releases what the source holds beyond Stop.
func newSource(cfg config.Config, profiles *store.ProfileStore, logger *log.Logger) (sensors.Source, func(), error) {
	switch cfg.Sensors.Source {
	case config.SourceBLE:
		manager := bt.NewBTManager(bluetooth.DefaultAdapter, logger)
		if err := manager.Enable(); err != nil {
			return nil, nil, fmt.Errorf("enable BLE stack: %w", err)
		}

		address := cfg.Sensors.BLEAddress
		if address == "" {
			preferred, ok, err := profiles.PreferredStrap()
			if err != nil {
				logger.Printf("Cannot read preferred strap: %v", err)
			} else if ok {
				address = preferred.Address
				logger.Printf("Looking for preferred strap %s (%s)", preferred.Name, preferred.Address)
			}
		}

		strap := sensors.NewHeartRateStrap(manager, logger, sensors.HeartRateStrapConfig{
			Address:   address,
			HRVWindow: cfg.Sensors.HRVWindow,
			OnConnected: func(address, name string) {
				if err := profiles.SetPreferredStrap(address, name); err != nil {
					logger.Printf("Cannot save preferred strap: %v", err)
				}
			},
		})
		return strap, manager.Shutdown, nil

	case config.SourceFit:
		points, err := sensors.LoadFitFile(cfg.Sensors.FitPath)
		if err != nil {
			return nil, nil, err
		}
		replay := sensors.NewFitReplay(logger, points, sensors.FitReplayConfig{Speedup: cfg.Sensors.FitSpeedup})
		go_func_utils.SafeGo(logger, func() {
			<-replay.Finished()
			logger.Printf("FIT replay finished after %d samples", replay.Position())
		})
		return replay, func() {}, nil

	default:
		runner := sensors.NewMockRunner(logger, sensors.MockRunnerConfig{Port: cfg.Sensors.MockPort})
		return runner, func() {}, nil
	}
}
