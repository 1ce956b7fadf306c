package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/progress"
	"github.com/onnwee/officer-sync/roster"
	"github.com/onnwee/officer-sync/syncjob"
)

type app struct {
	out         io.Writer
	in          io.Reader
	loadConfig  func() (*config.Config, error)
	newUpstream func(*config.Config) (syncjob.Upstream, error)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "officer-sync",
		Short:         "Attribute Discord report messages to officers",
		Long:          "officer-sync scans the report channels for a date range and groups the messages by the officer who filed them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)
	root.AddCommand(newRunCmd(a), newChannelsCmd(a), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "officer-sync %s\n", Version)
		},
	})
	return root
}

func newRunCmd(a *app) *cobra.Command {
	var start, end, membersPath string
	var only []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync and print its events as NDJSON",
		Example: "  officer-sync run --start 2024-05-01 --end 2024-05-31 --members roster.json\n" +
			"  cat roster.json | officer-sync run --start 2024-05-01 --end 2024-05-01 --members - --only SITA",
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := a.readMembers(membersPath)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			up, err := a.newUpstream(cfg)
			if err != nil {
				return fmt.Errorf("discord: %w", err)
			}
			job := syncjob.New(up, syncjob.Options{
				Channels:      cfg.Channels,
				Location:      cfg.Location,
				BatchPause:    cfg.FetchBatchPause,
				RetryInitial:  cfg.FetchRetryInitial,
				RetryMax:      cfg.FetchRetryMax,
				MaxRetries:    cfg.FetchMaxRetries,
				EndpointPause: cfg.EndpointPause,
			})
			if len(only) > 0 {
				eps, err := selectEndpoints(only)
				if err != nil {
					return err
				}
				job.Endpoints = eps
			}
			req := syncjob.Request{StartDate: start, EndDate: end, Members: members}
			return job.Run(cmd.Context(), req, progress.NewLineWriter(a.out))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day (inclusive), YYYY-MM-DD")
	cmd.Flags().StringVar(&membersPath, "members", "", `roster file: JSON list of {"id","nama"}; "-" reads stdin`)
	cmd.Flags().StringSliceVar(&only, "only", nil, "process only these endpoints (e.g. SITA,SIM)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("members")
	return cmd
}

func (a *app) readMembers(path string) ([]roster.Member, error) {
	var r io.Reader
	if path == "-" {
		if a.in == nil {
			r = os.Stdin
		} else {
			r = a.in
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open members: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	members := []roster.Member{}
	if err := json.NewDecoder(r).Decode(&members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return members, nil
}

// selectEndpoints keeps catalog order and rejects unknown names.
func selectEndpoints(names []string) ([]syncjob.Endpoint, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	var out []syncjob.Endpoint
	for _, ep := range syncjob.Catalog() {
		if want[ep.Name] {
			out = append(out, ep)
			delete(want, ep.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown endpoint(s): %s", strings.Join(unknown, ", "))
	}
	if len(out) == 0 {
		return nil, errors.New("--only selected no endpoints")
	}
	return out, nil
}

func newChannelsCmd(a *app) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Show the endpoint catalog and the configured channel table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			var up syncjob.Upstream
			if resolve {
				if up, err = a.newUpstream(cfg); err != nil {
					return fmt.Errorf("discord: %w", err)
				}
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENDPOINT\tKEY\tMODE\tCHANNEL ID\tCHANNEL")
			for _, ep := range syncjob.Catalog() {
				id := cfg.Channels[ep.ChannelKey]
				name := "-"
				switch {
				case id == "":
					id = "(not set)"
				case up != nil:
					ch, err := up.FetchChannel(cmd.Context(), id)
					if err != nil {
						name = "error: " + err.Error()
					} else {
						name = "#" + ch.Name
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ep.Name, ep.ChannelKey, ep.Mode, id, name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "look up channel names on Discord")
	return cmd
}
