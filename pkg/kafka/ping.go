package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/config"
)

// Ping succeeds if any configured broker accepts a connection and returns
// its broker list.
func Ping(ctx context.Context, cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}
	var errs []error
	for _, addr := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return errors.Join(errs...)
}
