package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/drivewise/garage-ops/internal/appointments"
	"github.com/drivewise/garage-ops/internal/auth"
	"github.com/drivewise/garage-ops/internal/calendar"
	"github.com/drivewise/garage-ops/internal/clock"
	"github.com/drivewise/garage-ops/internal/db"
	"github.com/drivewise/garage-ops/internal/handlers"
	"github.com/drivewise/garage-ops/internal/middleware"
	"github.com/drivewise/garage-ops/internal/notify"
	"github.com/drivewise/garage-ops/internal/proposals"
	"github.com/drivewise/garage-ops/internal/vehicles"
	"github.com/drivewise/garage-ops/internal/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Info("no .env file loaded")
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
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
	appointmentCol := &db.MongoAppointmentCollection{Collection: database.Collection("appointments")}
	proposalCol := &db.MongoProposalCollection{Collection: database.Collection("proposals")}
	vehicleCol := &db.MongoVehicleCollection{Collection: database.Collection("vehicles")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		mqttDispatcher, err := notify.NewMQTTDispatcher(brokerURL, "garaged")
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer mqttDispatcher.Close()
		dispatcher = mqttDispatcher
		log.WithField("broker", brokerURL).Info("MQTT notifications enabled")
	}

	authService, err := auth.NewService()
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	clk := clock.Real{}
	resolver := vehicles.NewResolver(vehicleCol)
	engine := workflow.NewEngine(tasks, users, resolver, dispatcher, clk)
	manager := appointments.NewManager(appointmentCol, tasks, users, dispatcher, clk)
	chain := proposals.NewChain(proposalCol, tasks, users, dispatcher)
	reconciler := calendar.NewReconciler(appointmentCol, tasks)

	router := handlers.NewRouter(
		handlers.NewAuthHandler(authService, users),
		handlers.NewTaskHandler(engine),
		handlers.NewAppointmentHandler(manager),
		handlers.NewProposalHandler(chain),
		handlers.NewCalendarHandler(reconciler, clk),
		handlers.NewVehicleHandler(resolver),
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimitMiddleware(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("garaged listening")
	log.Fatal(http.ListenAndServe(":"+port, router))
}
