/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/newsdesk/apiserver/config"
	"github.com/newsdesk/apiserver/internal/events"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account and article events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every event published on the events channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := config.LoadConfig()
		logger := logging.New("newsdesk-events", cfg.LogLevel)

		broker, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		channel := cfg.MQ.EventsChannel
		if channel == "" {
			channel = events.DefaultChannel
		}
		logger.WithField("channel", channel).Info("tailing events")

		err = broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				logger.WithError(err).WithField("message_id", msg.ID).Warn("dropping undecodable event")
				return nil
			}
			logger.WithFields(logrus.Fields{
				"event_id":     event.ID,
				"type":         event.Type,
				"subject":      event.Subject,
				"actor":        event.Actor,
				"occurred_at":  event.OccurredAt,
				"data":         event.Data,
				"published_at": msg.Attributes[mq.PublishedAtAttribute],
			}).Info("event")
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
