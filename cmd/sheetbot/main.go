package main

import (
	"context"
	"log"

	"github.com/m3rciful/sheetbot/app/bot"
	"github.com/m3rciful/sheetbot/core/bootstrap"
	corecmd "github.com/m3rciful/sheetbot/core/cmd"
	coreconfig "github.com/m3rciful/sheetbot/core/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		EnvFiles:          []string{".env"},
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg := carrier.CoreConfig()
			res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			return bot.New(context.Background(), cfg, res.DB, bot.Overrides{})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
