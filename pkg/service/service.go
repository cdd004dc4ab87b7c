package service

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"lifemonitor/pkg/log"
	"lifemonitor/pkg/queue"
	"lifemonitor/pkg/queue/driver"
)

var (
	mu          sync.Mutex
	_brokersMap = map[string]queue.Broker{}
)

// GetBroker returns the broker of a connection string, opening it on first use.
func GetBroker(connStr, exchange string) (queue.Broker, error) {
	mu.Lock()
	defer mu.Unlock()

	key := exchange + "@" + connStr
	if broker, ok := _brokersMap[key]; ok {
		return broker, nil
	}
	broker, err := driver.Open(connStr, exchange)
	if err != nil {
		return nil, err
	}
	_brokersMap[key] = broker
	return broker, nil
}

// CloseBrokers closes every broker opened by GetBroker.
func CloseBrokers() {
	mu.Lock()
	defer mu.Unlock()
	for key, broker := range _brokersMap {
		if err := broker.Close(); err != nil {
			log.Warnf(nil, "close broker %s failed: %v", broker.Name(), err)
		}
		delete(_brokersMap, key)
	}
}

// Service is a long running process component.
type Service interface {
	Initialize() error
	Start() error
	Stop() error
}

// Run initializes and starts svc, then stops it on SIGINT or SIGTERM.
func Run(name string, svc Service) error {
	if err := svc.Initialize(); err != nil {
		return err
	}
	errs := make(chan error, 1)
	go func() {
		errs <- svc.Start()
	}()
	log.Infof(nil, "%s started", name)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		log.Infof(nil, "%s received %s, stopping", name, sig)
	case err := <-errs:
		if err != nil {
			log.Errorf(nil, "%s terminated: %v", name, err)
			_ = svc.Stop()
			return err
		}
		// Start returned without blocking: the service runs in the background.
		sig := <-sigs
		log.Infof(nil, "%s received %s, stopping", name, sig)
	}
	return svc.Stop()
}
