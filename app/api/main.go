package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/app/api/errs"
	"github.com/hamidoujand/postgres-agent/app/api/handlers"
	"github.com/hamidoujand/postgres-agent/business/broker/rabbitmq"
	"github.com/hamidoujand/postgres-agent/business/domain/postgres"
	"github.com/hamidoujand/postgres-agent/business/domain/scheduler"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/domain/task/store/memory"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/business/lock"
	redislock "github.com/hamidoujand/postgres-agent/business/lock/redis"
	"github.com/hamidoujand/postgres-agent/business/queue"
	rabbitqueue "github.com/hamidoujand/postgres-agent/business/queue/rabbitmq"
	"github.com/hamidoujand/postgres-agent/foundation/docker"
	"github.com/hamidoujand/postgres-agent/foundation/logger"
	"github.com/hamidoujand/postgres-agent/foundation/telemetry"
	"github.com/redis/go-redis/v9"
)

// will be changed from build tags
var build = "0.0.1"

// dispatchQueue is the queue shared by the api and the scheduler.
type dispatchQueue interface {
	Put(ctx context.Context, taskId uuid.UUID) error
	Get(ctx context.Context) (uuid.UUID, error)
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "err: %s", err)
		os.Exit(1)
	}
}

func run() error {
	//==========================================================================
	//setup configurations
	configs := struct {
		API struct {
			Host            string        `conf:"default:0.0.0.0:8000"`
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			Environment     string        `conf:"default:development"`
			LogLevel        string        `conf:"default:info"`
		}

		Docker struct {
			Host string
		}

		Postgres struct {
			ContainerName string `conf:"default:postgres"`
			Image         string `conf:"default:postgres"`
			Password      string `conf:"default:postgres,mask"`
			InternalPort  int    `conf:"default:5432"`
		}

		Scheduler struct {
			MaxRunningTasks int           `conf:"default:16"`
			ShutdownTimeout time.Duration `conf:"default:1m"`
			TaskTimeout     time.Duration `conf:"default:0s"`
		}

		AMQP struct {
			Host     string
			User     string `conf:"default:guest"`
			Password string `conf:"default:guest,mask"`
			Queue    string `conf:"default:postgres-agent-tasks"`
		}

		Redis struct {
			Host     string
			Password string        `conf:"mask"`
			DB       int           `conf:"default:0"`
			LockTTL  time.Duration `conf:"default:30s"`
		}

		Telemetry struct {
			OTLPEndpoint string
			ServiceName  string `conf:"default:postgres-agent"`
		}
	}{}

	prefix := "AGENT"
	if help, err := conf.Parse(prefix, &configs); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		//some error we need to handle
		return fmt.Errorf("parsing config: %w", err)
	}

	//==========================================================================
	//setup logger
	isProd := configs.API.Environment == "production"

	attrs := []slog.Attr{
		{Key: "build", Value: slog.StringValue(build)},
		{Key: "app", Value: slog.StringValue("postgres-agent")},
	}

	log := logger.NewCustomLogger(os.Stdout, logger.ParseLevel(configs.API.LogLevel), isProd, attrs...)

	//==========================================================================
	//tracing
	stopTracer, err := telemetry.InitTracer(context.Background(), configs.Telemetry.ServiceName, configs.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer stopTracer()
	log.Info("tracer", "status", "initialized", "endpoint", configs.Telemetry.OTLPEndpoint)

	//==========================================================================
	//validator
	appValidator, err := errs.NewAppValidator()
	if err != nil {
		return fmt.Errorf("creating app validator: %w", err)
	}
	log.Info("application validator", "status", "successfully initialized")

	//==========================================================================
	//docker
	log.Info("docker", "status", "connecting", "host", configs.Docker.Host)
	dockerClient, err := docker.NewClient(configs.Docker.Host)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	defer dockerClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := dockerClient.StatusCheck(ctx); err != nil {
		return fmt.Errorf("docker status check: %w", err)
	}
	log.Info("docker", "status", "status check ran successfully")

	//==========================================================================
	//dispatch queue
	var q dispatchQueue
	if configs.AMQP.Host == "" {
		q = queue.NewMemory()
		log.Info("queue", "status", "using in-memory queue")
	} else {
		log.Info("rabbitmq", "status", "connecting", "host", configs.AMQP.Host)
		rClient, err := rabbitmq.NewClient(ctx, rabbitmq.Configs{
			Host:     configs.AMQP.Host,
			User:     configs.AMQP.User,
			Password: configs.AMQP.Password,
		})
		if err != nil {
			return fmt.Errorf("rabbitmq client: %w", err)
		}

		rq, err := rabbitqueue.New(rClient, configs.AMQP.Queue, log)
		if err != nil {
			_ = rClient.Close()
			return fmt.Errorf("rabbitmq queue: %w", err)
		}
		q = rq
		log.Info("rabbitmq", "status", "consuming", "queue", configs.AMQP.Queue)
	}

	//==========================================================================
	//resource locks
	var locker lock.Locker = lock.NewMemory()
	if configs.Redis.Host != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     configs.Redis.Host,
			Password: configs.Redis.Password,
			DB:       configs.Redis.DB,
		})
		defer redisClient.Close()

		log.Info("redis", "status", "pinging redis engine", "host", configs.Redis.Host)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		locker = redislock.NewLocker(redisClient, configs.Redis.LockTTL, log)
		log.Info("redis", "status", "using redis locks")
	}

	//==========================================================================
	//task registry, flows and scheduler
	taskService := task.NewService(memory.NewRepository(), q)

	provisioner := postgres.NewProvisioner(postgres.Config{
		ContainerName: configs.Postgres.ContainerName,
		Image:         configs.Postgres.Image,
		Password:      configs.Postgres.Password,
		InternalPort:  configs.Postgres.InternalPort,
	})

	sched, err := scheduler.New(scheduler.Config{
		Logger:          log,
		Queue:           q,
		TaskService:     taskService,
		Flows:           flow.NewRegistry(provisioner.Flows()),
		Runtime:         dockerClient,
		Locker:          locker,
		MaxRunningTasks: configs.Scheduler.MaxRunningTasks,
		TaskTimeout:     configs.Scheduler.TaskTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()

	schedulerErrors := make(chan error, 1)
	go func() {
		schedulerErrors <- sched.Run(schedCtx)
	}()

	//==========================================================================
	//server

	serverErrors := make(chan error, 1)
	shutdownCh := make(chan os.Signal, 1)

	signal.Notify(shutdownCh, syscall.SIGTERM, syscall.SIGINT)

	app := handlers.RegisterRoutes(handlers.Config{
		Build:       build,
		Shutdown:    shutdownCh,
		Logger:      log,
		Validator:   appValidator,
		TaskService: taskService,
		Provisioner: provisioner,
		Runtime:     dockerClient,
		Health:      dockerClient,
		Running:     sched.Running,
	})
	log.Info("mux", "status", "registering routes to the mux")

	srv := http.Server{
		Addr:        configs.API.Host,
		Handler:     http.TimeoutHandler(app, configs.API.WriteTimeout, "timed out"),
		ReadTimeout: configs.API.ReadTimeout,
		ErrorLog:    slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	//server start
	go func() {
		log.Info("server", "status", "started", "host", configs.API.Host, "environment", configs.API.Environment)
		serverErrors <- srv.ListenAndServe()
	}()

	//block
	select {
	case serverErr := <-serverErrors:
		return fmt.Errorf("server error: %w", serverErr)

	case schedErr := <-schedulerErrors:
		if schedErr == nil {
			return errors.New("scheduler stopped unexpectedly")
		}
		return fmt.Errorf("scheduler error: %w", schedErr)

	case signal := <-shutdownCh:
		//graceful shutdown
		log.Info("shutdown", "status", "started", "signal", signal)

		ctx, cancel := context.WithTimeout(context.Background(), configs.API.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			//force shutdown
			_ = srv.Close()
			log.Error("shutdown", "status", "graceful server shutdown failed", "msg", err.Error())
		}

		//no more submissions, stop taking ids and drain what is running.
		stopSched()
		if err := q.Close(); err != nil {
			log.Error("shutdown", "status", "failed to close queue", "msg", err.Error())
		}

		schedShutdownCtx, cancelSched := context.WithTimeout(context.Background(), configs.Scheduler.ShutdownTimeout)
		defer cancelSched()

		if err := sched.Shutdown(schedShutdownCtx); err != nil {
			return fmt.Errorf("scheduler shutdown: %w", err)
		}

		log.Info("shutdown", "status", "completed")
	}
	return nil
}
