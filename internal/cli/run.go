package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/config"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/log"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/monitoring"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/services"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/simulators"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/subscription"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// memoryNamespaceIndex is the namespace of sensor nodes when no OPC UA server is hosted.
const memoryNamespaceIndex = 2

func Run() {

	// Get configs from file, env and flags
	cfg := config.GetConfigs(os.Args[1:])

	// Instantiate a new logger
	logger := log.NewLogger(
		cfg.LoggerConfig.Level,
		cfg.LoggerConfig.Format,
		cfg.LoggerConfig.DisableTimestamp,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Address space: the awcullen server namespace or an in-memory store
	var (
		view  addressspace.View
		sink  services.SensorSink
		uaSrv *services.UaSrvService
	)
	if cfg.Server.Enabled && !strings.EqualFold(cfg.AddressSpaceBackend, "memory") {
		srv, err := services.NewUaSrvService(cfg.Server, logger)
		if err != nil {
			logger.Errorln("⛔ Failed to instantiate the OPC UA server, exiting.. ⛔")
			panic(err)
		}
		uaSrv = srv
		view = addressspace.NewNamespaceView(srv.GetServer())
		sink = services.NewSensorSimService(srv, logger)
		srv.Start()
	} else {
		store := addressspace.NewStore()
		view = store
		sink = services.NewStoreSensorSink(store, memoryNamespaceIndex)
		logger.Infoln("Using the in-memory address space 🔔")
	}

	// Add the simulated IoT sensors
	for _, sim := range cfg.Simulators {
		if _, err := sink.AddSensor(sim.SensorId, deadband.Range{Low: sim.EULow, High: sim.EUHigh}); err != nil {
			logger.WithFields(logrus.Fields{
				"Sensor Id": sim.SensorId,
				"Err":       err,
			}).Errorln("⛔ Failed to add sensor ⛔")
			continue
		}
		go simulators.NewIoTSensorSim(
			sim.SensorId,
			sim.Mean,
			sim.Std,
			int(sim.DelayMin),
			int(sim.DelayMax),
			sim.Randomize,
		).Run(ctx, sink, logger)
	}

	// Notification publisher
	publisher, closePublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Errorln("⛔ Failed to instantiate the notification publisher, exiting.. ⛔")
		panic(err)
	}

	var opts []subscription.Option
	var metricsSrv *http.Server
	if cfg.EnablePrometheus {
		opts = append(opts, subscription.WithMetrics(services.NewMonitor(nil)))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.PrometheusAddr, Handler: mux}
		go func() {
			logger.WithField("Addr", cfg.PrometheusAddr).Infoln("Serving Prometheus metrics ✅")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithField("Err", err).Errorln("Prometheus endpoint stopped ⛔")
			}
		}()
	}

	manager := subscription.NewManager(view, publisher, logger, opts...)
	for _, subCfg := range cfg.Subscriptions {
		createSubscription(manager, subCfg, logger)
	}

	done := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(done)
	}()

	// Wait for a signal before exiting
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	<-sig

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	closePublisher(shutdownCtx)
	if uaSrv != nil {
		_ = uaSrv.Close()
	}

	logger.Info("Shutdown complete ✅")
}

func createSubscription(manager *subscription.Manager, subCfg component.Subscription, logger *logrus.Logger) {
	s := manager.Create(SubscriptionConfig(subCfg))
	revised := s.Config()
	logger.WithFields(logrus.Fields{
		"Subscription":       s.ID(),
		"PublishingInterval": revised.PublishingInterval,
		"SamplingTick":       revised.SamplingTick,
	}).Infoln("Subscription created ✅")

	reqs := make([]monitoring.CreateRequest, 0, len(subCfg.MonitoredItems))
	for _, item := range subCfg.MonitoredItems {
		req, err := CreateRequest(item)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"NodeId": item.NodeId,
				"Err":    err,
			}).Errorln("⛔ Skipping monitored item ⛔")
			continue
		}
		reqs = append(reqs, req)
	}

	for i, res := range s.CreateMonitoredItems(reqs) {
		entry := logger.WithFields(logrus.Fields{
			"Subscription": s.ID(),
			"NodeId":       reqs[i].ItemToMonitor.NodeID,
		})
		if res.StatusCode != ua.Good {
			entry.WithField("Status", res.StatusCode).Warnln("Monitored item rejected 🔔")
			continue
		}
		entry.WithFields(logrus.Fields{
			"ItemId":           res.MonitoredItemID,
			"SamplingInterval": res.RevisedSamplingInterval,
			"QueueSize":        res.RevisedQueueSize,
		}).Infoln("Monitored item created ✅")
	}
}

func newPublisher(ctx context.Context, cfg config.Cfg, logger *logrus.Logger) (subscription.Publisher, func(context.Context), error) {
	encoder, err := services.NewPayloadEncoder(cfg.Publisher.Encoding)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(cfg.Publisher.Backend) {
	case "", "log":
		return services.NewLogPublisher(logger, encoder), func(context.Context) {}, nil
	case "mqtt":
		session := services.NewMqttSessionSvc(logger, cfg.MQTTConfig)
		if err := session.EstablishMqttSession(ctx); err != nil {
			return nil, nil, err
		}
		p := services.NewMqttPublisher(session.MqttClient, encoder, cfg.Publisher.TopicPrefix, cfg.MQTTConfig.QoS, logger)
		return p, session.Close, nil
	case "kafka":
		p := services.NewKafkaPublisher(services.NewKafkaWriter(cfg.Kafka.Brokers), encoder, cfg.Publisher.TopicPrefix, logger)
		return p, func(context.Context) {
			if err := p.Close(); err != nil {
				logger.WithField("Err", err).Errorln("Failed to close the Kafka writer ⛔")
			}
		}, nil
	}
	return nil, nil, errors.Errorf("unknown publisher backend %q", cfg.Publisher.Backend)
}
