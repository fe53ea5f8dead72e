package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/notify"
	"github.com/drivewise/garage-ops/internal/vehicles"
	"github.com/drivewise/garage-ops/internal/workflow"
)

// pollInterval reads REMINDER_POLL_INTERVAL, falling back to one minute.
func pollInterval() time.Duration {
	raw := os.Getenv("REMINDER_POLL_INTERVAL")
	if raw == "" {
		return time.Minute
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		log.WithField("value", raw).Warn("invalid REMINDER_POLL_INTERVAL, using 1m")
		return time.Minute
	}
	return interval
}

// run polls until the context is cancelled. Each tick promotes scheduled
// tasks whose reminder time has passed.
func run(ctx context.Context, engine *workflow.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		promoted, err := engine.PromoteDueReminders(ctx)
		if err != nil {
			log.WithError(err).Error("reminder poll failed")
		} else if promoted > 0 {
			log.WithField("promoted", promoted).Info("scheduled tasks moved to the board")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Info("no .env file loaded")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Info("Connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "garage"
	}
	database := client.Database(dbName)

	tasks := &db.MongoTaskCollection{Collection: database.Collection("tasks")}
	vehicleCol := &db.MongoVehicleCollection{Collection: database.Collection("vehicles")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		mqttDispatcher, err := notify.NewMQTTDispatcher(brokerURL, "reminderd")
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer mqttDispatcher.Close()
		dispatcher = mqttDispatcher
	}

	resolver := vehicles.NewResolver(vehicleCol)
	engine := workflow.NewEngine(tasks, users, resolver, dispatcher, clock.Real{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := pollInterval()
	log.WithField("interval", interval).Info("reminderd polling")
	run(ctx, engine, interval)
	log.Info("reminderd stopped")
}
