package main

import (
	"flag"
	"os"

	"github.com/louisbranch/docwatch/internal/platform/config"
	"github.com/louisbranch/docwatch/internal/tools/admintoken"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		config.Exitf("load .env: %v", err)
	}
	cfg, err := admintoken.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := admintoken.Run(cfg, os.Stdout, nil, nil); err != nil {
		config.Exitf("generate admin credential: %v", err)
	}
}
