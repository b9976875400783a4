package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/lumachat/llmcore/pkg/config"
)

func providersCommand(_ context.Context, argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("providers", flag.ContinueOnError)
	set.SetOutput(streams.err)
	configFlag := set.String("config", cfgPath, "Path to the gateway config file.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: llmctl providers [flags]")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	registry, err := config.BuildRegistry(cfg)
	if err != nil {
		return err
	}
	if streams.out == nil {
		return nil
	}
	for _, info := range registry.Providers() {
		caps := []string{}
		if info.Capabilities.Streaming {
			caps = append(caps, "streaming")
		}
		if info.Capabilities.Tools {
			caps = append(caps, "tools")
		}
		if info.Capabilities.Reasoning {
			caps = append(caps, "reasoning")
		}
		fmt.Fprintf(streams.out, "%s\t%s\t[%s]\n", info.Name, info.Label, strings.Join(caps, ","))
	}
	return nil
}
