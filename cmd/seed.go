/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/newsdesk/apiserver/config"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/server"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/spf13/cobra"
)

var seedArticles = []services.ArticleInput{
	{
		Title:    "Revolutionary AI Technology Transforms Healthcare Industry",
		Content:  "A new AI system analyzes medical images with 99% accuracy, outperforming traditional diagnostic methods. Early trials identified cancer, heart disease, and neurological disorders earlier than specialists.",
		Author:   "Dr. Sarah Johnson",
		Category: "Technology",
		Image:    "https://images.pexels.com/photos/3846080/pexels-photo-3846080.jpeg",
		Summary:  "New AI system achieves 99% accuracy in medical image analysis.",
		Tags:     []string{"ai", "healthcare", "technology", "medical"},
	},
	{
		Title:    "Global Climate Summit Reaches Historic Agreement",
		Content:  "Representatives from 195 countries agreed to binding targets for reducing greenhouse gas emissions, including carbon pricing and a transition to renewable energy sources.",
		Author:   "Michael Chen",
		Category: "Politics",
		Image:    "https://images.pexels.com/photos/3039036/pexels-photo-3039036.jpeg",
		Summary:  "Historic climate agreement reached by 195 countries.",
		Tags:     []string{"climate", "environment", "politics", "sustainability"},
	},
	{
		Title:    "Major Sports Championship Draws Record Viewership",
		Content:  "The championship final drew 1.2 billion viewers worldwide, the largest audience in the history of the tournament, as streaming platforms reported record concurrent traffic.",
		Author:   "Emma Rodriguez",
		Category: "Sports",
		Summary:  "Championship final breaks viewership records with 1.2 billion global viewers.",
		Tags:     []string{"sports", "championship", "viewership", "broadcasting"},
	},
	{
		Title:    "Breakthrough in Renewable Energy Storage",
		Content:  "Researchers unveiled a battery chemistry able to store renewable energy for weeks instead of hours, addressing one of the main obstacles to a fully renewable grid.",
		Author:   "Dr. James Wilson",
		Category: "Technology",
		Tags:     []string{"renewable energy", "battery", "technology", "sustainability"},
	},
	{
		Title:    "Blockbuster Film Breaks Box Office Records",
		Content:  "The latest franchise sequel opened to $350 million worldwide over its first weekend, the biggest debut of the year and a welcome boost for cinemas.",
		Author:   "Lisa Park",
		Category: "Entertainment",
		Tags:     []string{"movies", "box office", "entertainment", "cinema"},
	},
}

// seedCmd represents the seed command.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the initial super admin, an editor, and sample articles",
	Long: `Create the initial super admin, an editor admin and a set of sample
articles. The super admin is read from ADMIN_USERNAME, ADMIN_EMAIL and
ADMIN_PASSWORD. Seeding is refused once any account exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.LoadConfig()
		logger := logging.New("newsdesk-seed", cfg.LogLevel)

		app, err := server.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			_ = app.Close(ctx)
		}()

		root, err := app.Accounts.Bootstrap(ctx, services.AdminInput{
			Username: envOr("ADMIN_USERNAME", "admin"),
			Email:    envOr("ADMIN_EMAIL", "admin@newsapp.com"),
			Password: envOr("ADMIN_PASSWORD", "admin123"),
		})
		if err != nil {
			if errors.Is(err, services.ErrAlreadyBootstrapped) {
				return errors.New("database already has accounts, refusing to seed")
			}
			return fmt.Errorf("create super admin: %w", err)
		}
		logger.WithField("username", root.Username).Info("super admin created")

		editor, err := app.Accounts.CreateAdmin(ctx, &root, services.AdminInput{
			Username: "editor",
			Email:    "editor@newsapp.com",
			Password: "editor123",
		})
		if err != nil {
			return fmt.Errorf("create editor: %w", err)
		}
		logger.WithField("username", editor.Username).Info("editor admin created")

		for _, input := range seedArticles {
			if _, err := app.Articles.Create(ctx, &root, input); err != nil {
				return fmt.Errorf("create article %q: %w", input.Title, err)
			}
		}
		logger.WithField("count", len(seedArticles)).Info("sample articles created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
