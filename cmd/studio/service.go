package main

import (
	"fmt"

	"github.com/joeblack2k/openclaw-studio-sub002/internal/core"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage studio as a system service",
	}

	var cfgPath string
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")

	for _, action := range []string{"install", "uninstall", "start", "stop", "run"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the studio service", action),
			RunE: func(_ *cobra.Command, _ []string) error {
				return runServiceAction(action, cfgPath)
			},
		})
	}
	return cmd
}

func runServiceAction(action, cfgPath string) error {
	prg := &program{configPath: cfgPath}

	arguments := []string{"service", "run"}
	if cfgPath != "" {
		arguments = append(arguments, "--config", cfgPath)
	}

	svc, err := service.New(prg, &service.Config{
		Name:        "studio",
		DisplayName: "Studio",
		Description: "Exec-approval coordinator for autonomous agent runtimes",
		Arguments:   arguments,
	})
	if err != nil {
		return err
	}

	switch action {
	case "install":
		if err := svc.Install(); err != nil {
			return err
		}
		fmt.Println("Service installed.")
	case "uninstall":
		if err := svc.Uninstall(); err != nil {
			return err
		}
		fmt.Println("Service uninstalled.")
	case "start":
		return svc.Start()
	case "stop":
		return svc.Stop()
	case "run":
		// Blocks until the service manager asks us to stop.
		return svc.Run()
	default:
		return fmt.Errorf("unknown service action: %s", action)
	}
	return nil
}

// program adapts the module lifecycle to the service manager. Start must
// not block, so modules come up here and shutdown happens in Stop.
type program struct {
	configPath string
	app        *core.App
}

func (p *program) Start(_ service.Service) error {
	app, _, err := buildApp(p.configPath)
	if err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	p.app = app
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.app != nil {
		p.app.Stop()
		p.app = nil
	}
	return nil
}
