package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"code.siemens.com/grid-load-balancer/common"
	"code.siemens.com/grid-load-balancer/dda"
	"code.siemens.com/grid-load-balancer/device"
	"code.siemens.com/grid-load-balancer/gm"
	"code.siemens.com/grid-load-balancer/history"
	"code.siemens.com/grid-load-balancer/lb"
)

func main() {
	log.Println("starting node")

	var configPath string
	var id string
	var url string
	var backend string
	bootstrap := flag.Bool("b", false, "bootstrap the replicated state store")
	groupEnabled := flag.Bool("g", false, "participate in group management")
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&id, "id", "", "node id")
	flag.StringVar(&url, "url", "tcp://localhost:1883", "mqtt url")
	flag.StringVar(&backend, "backend", "", "device backend (sim, serial, mqtt)")
	flag.Parse()

	cfg := common.NewConfig()
	if configPath != "" {
		var err error
		if cfg, err = common.LoadConfig(configPath); err != nil {
			log.Fatalln(err)
		}
	}

	if id != "" {
		cfg.Id = id
	}
	if url != "" {
		cfg.Url = url
	}
	if backend != "" {
		cfg.Device.Backend = backend
	}
	cfg.Group.Enabled = cfg.Group.Enabled || *groupEnabled
	cfg.Group.Bootstrap = cfg.Group.Bootstrap || *bootstrap

	var ddaConnector *dda.Connector
	var groupManager *gm.GroupManager
	var agent *lb.Agent
	var err error

	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		log.Println("node - shutting down")
		cancel()

		if agent != nil {
			agent.Stop()
		}

		if groupManager != nil {
			groupManager.Close()
		}

		if ddaConnector != nil {
			ddaConnector.Close()
		}
	}()

	dev, err := device.New(cfg.Device, cfg.Id, cfg.Url)
	if err != nil {
		log.Fatalln(err)
	}

	hist := history.NewLog(cfg.History.MaxEntries)

	if ddaConnector, err = dda.NewConnector(cfg); err != nil {
		log.Fatalln(err)
	}

	if err = ddaConnector.Open(); err != nil {
		log.Fatalln(err)
	}

	if cfg.Group.Enabled {
		groupManager = gm.New(cfg.Group, ddaConnector)
		if err = groupManager.Open(); err != nil {
			log.Fatalln(err)
		}
	}

	agent = lb.NewAgent(cfg.Balancer, cfg.Id, ddaConnector, dev, hist)
	if err = agent.Start(ctx); err != nil {
		log.Fatalln(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan
}
