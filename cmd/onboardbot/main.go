package main

import (
	"log"
	"os"

	corecmd "github.com/m3rciful/onboardbot/core/cmd"
	"github.com/m3rciful/onboardbot/onboarding/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		Name:              "onboardbot",
		Args:              os.Args[1:],
		ConfigEnvVar:      "ONBOARDBOT_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(cfg.(*app.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
