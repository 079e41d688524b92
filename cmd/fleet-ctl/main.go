// Command fleet-ctl is the operator CLI for the Command API: send, get,
// list, and cancel device commands, manage command templates and
// schedules, and tail the Subscription Hub's live push stream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fleettrack/internal/rpc"
	"fleettrack/pkg/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr := os.Getenv("FLEET_CORE_ADDR")
	if addr == "" {
		addr = "localhost:50070"
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "send":
		err = runSend(addr, args)
	case "get":
		err = runGet(addr, args)
	case "list":
		err = runList(addr, args)
	case "cancel":
		err = runCancel(addr, args)
	case "template-create":
		err = runTemplateCreate(addr, args)
	case "template-list":
		err = runTemplateList(addr, args)
	case "schedule":
		err = runSchedule(addr, args)
	case "watch":
		err = runWatch(addr, args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "fleet-ctl: "+err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `fleet-ctl: operate the Command API

Usage:
  fleet-ctl send -device <id> -type <type> [-priority <LOW|NORMAL|HIGH|CRITICAL>] [-params <json>]
  fleet-ctl get -id <command-id>
  fleet-ctl list -device <id> [-status <STATUS>] [-limit <n>] [-offset <n>]
  fleet-ctl cancel -id <command-id>
  fleet-ctl template-create -name <name> -type <type> [-priority <p>] [-params <json>]
  fleet-ctl template-list
  fleet-ctl schedule -device <id> -template <id> -earliest <RFC3339> [-repeat <duration>] [-max-repeats <n>]
  fleet-ctl watch -topics <topic1,topic2,...>

The target fleet-core address defaults to localhost:50070, overridable via
the FLEET_CORE_ADDR environment variable.`)
}

func dial(addr string) (*client.CommandClient, error) {
	return client.NewCommandClient(&client.CommandClientConfig{
		Address: addr,
		Timeout: 30 * time.Second,
	})
}

func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid -params JSON: %w", err)
	}
	return params, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSend(addr string, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	device := fs.String("device", "", "device ID")
	typ := fs.String("type", "", "command type")
	priority := fs.String("priority", "NORMAL", "priority: LOW|NORMAL|HIGH|CRITICAL")
	params := fs.String("params", "", "command parameters as JSON")
	issuedBy := fs.String("issued-by", "fleet-ctl", "operator identity recorded on the command")
	maxRetries := fs.Int("max-retries", 0, "override the default max retry count")
	expiresIn := fs.Duration("expires-in", 0, "reject the command if not sent within this duration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *device == "" || *typ == "" {
		return fmt.Errorf("send requires -device and -type")
	}
	p, err := parseParams(*params)
	if err != nil {
		return err
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.Send(ctx, &rpc.SendCommandRequest{
		DeviceID:   *device,
		IssuedBy:   *issuedBy,
		Type:       *typ,
		Priority:   strings.ToUpper(*priority),
		Params:     p,
		MaxRetries: *maxRetries,
		ExpiresIn:  *expiresIn,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runGet(addr string, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "command ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("get requires -id")
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.Get(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runList(addr string, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	device := fs.String("device", "", "device ID")
	status := fs.String("status", "", "filter by status")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "page offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *device == "" {
		return fmt.Errorf("list requires -device")
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.List(ctx, *device, strings.ToUpper(*status), int32(*limit), int32(*offset))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runCancel(addr string, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	id := fs.String("id", "", "command ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("cancel requires -id")
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.Cancel(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runTemplateCreate(addr string, args []string) error {
	fs := flag.NewFlagSet("template-create", flag.ExitOnError)
	name := fs.String("name", "", "template name")
	typ := fs.String("type", "", "command type")
	priority := fs.String("priority", "NORMAL", "priority: LOW|NORMAL|HIGH|CRITICAL")
	params := fs.String("params", "", "default parameters as JSON")
	maxRetries := fs.Int("max-retries", 0, "default max retry count")
	channel := fs.String("channel", "", "preferred delivery channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *typ == "" {
		return fmt.Errorf("template-create requires -name and -type")
	}
	p, err := parseParams(*params)
	if err != nil {
		return err
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.CreateTemplate(ctx, &rpc.CreateTemplateRequest{
		Name:       *name,
		Type:       *typ,
		Priority:   strings.ToUpper(*priority),
		Params:     p,
		MaxRetries: *maxRetries,
		Channel:    *channel,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runTemplateList(addr string, _ []string) error {
	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.ListTemplates(ctx)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runSchedule(addr string, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	device := fs.String("device", "", "device ID")
	template := fs.String("template", "", "template ID")
	earliest := fs.String("earliest", "", "earliest fire time, RFC3339")
	overrides := fs.String("overrides", "", "parameter overrides as JSON")
	repeat := fs.Duration("repeat", 0, "re-arm interval; 0 fires once")
	maxRepeats := fs.Int("max-repeats", 0, "cap on total firings; 0 means unlimited")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *device == "" || *template == "" || *earliest == "" {
		return fmt.Errorf("schedule requires -device, -template, and -earliest")
	}
	earliestAt, err := time.Parse(time.RFC3339, *earliest)
	if err != nil {
		return fmt.Errorf("invalid -earliest: %w", err)
	}
	ov, err := parseParams(*overrides)
	if err != nil {
		return err
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.ScheduleCommand(ctx, &rpc.ScheduleCommandRequest{
		DeviceID:       *device,
		TemplateID:     *template,
		Overrides:      ov,
		EarliestAt:     earliestAt,
		RepeatInterval: *repeat,
		MaxRepeats:     *maxRepeats,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runWatch(addr string, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	topics := fs.String("topics", "", "comma-separated topics, e.g. positions,geofence_alerts,device:abc123")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topics == "" {
		return fmt.Errorf("watch requires -topics")
	}

	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	stream, err := c.Subscribe(ctx, strings.Split(*topics, ","))
	if err != nil {
		return err
	}

	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		if err := printJSON(env); err != nil {
			return err
		}
	}
}
