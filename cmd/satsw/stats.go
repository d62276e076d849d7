/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var statsAddrFlag string

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dump per-port switch counters from a running daemon's /metrics endpoint",
		RunE:  runStats,
	}
	cmd.Flags().StringVar(&statsAddrFlag, "addr", "http://localhost:9101/metrics", "address of the daemon's metrics endpoint")
	RootCmd.AddCommand(cmd)
}

// portRow holds one port's worth of satcat5_switch_* counters, scraped
// off the wire rather than read from in-process state: a CLI invocation
// of satsw stats is a separate process from the running satsw run daemon.
type portRow struct {
	port                                         string
	rcvd, sent, bcast, errOvr, errPkt, errTotal float64
}

func scrapeSwitchStats(addr string) ([]portRow, error) {
	resp, err := http.Get(addr)
	if err != nil {
		return nil, fmt.Errorf("scraping %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing metrics: %w", err)
	}

	rows := map[string]*portRow{}
	rowFor := func(port string) *portRow {
		if r, ok := rows[port]; ok {
			return r
		}
		r := &portRow{port: port}
		rows[port] = r
		return r
	}

	assign := func(name string, set func(r *portRow, v float64)) {
		fam, ok := families[name]
		if !ok {
			return
		}
		for _, m := range fam.GetMetric() {
			port := "?"
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() == "port" {
					port = lbl.GetValue()
				}
			}
			set(rowFor(port), m.GetGauge().GetValue())
		}
	}

	assign("satcat5_switch_rcvd_frames", func(r *portRow, v float64) { r.rcvd = v })
	assign("satcat5_switch_sent_frames", func(r *portRow, v float64) { r.sent = v })
	assign("satcat5_switch_bcast_frames", func(r *portRow, v float64) { r.bcast = v })
	assign("satcat5_switch_err_ovr", func(r *portRow, v float64) { r.errOvr = v })
	assign("satcat5_switch_err_pkt", func(r *portRow, v float64) { r.errPkt = v })
	assign("satcat5_switch_err_total", func(r *portRow, v float64) { r.errTotal = v })

	out := make([]portRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].port < out[j].port })
	return out, nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	rows, err := scrapeSwitchStats(statsAddrFlag)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Port", "Rcvd", "Sent", "Bcast", "ErrOvr", "ErrPkt", "ErrTotal"})
	for _, r := range rows {
		table.Append([]string{
			r.port,
			fmt.Sprintf("%.0f", r.rcvd),
			fmt.Sprintf("%.0f", r.sent),
			fmt.Sprintf("%.0f", r.bcast),
			fmt.Sprintf("%.0f", r.errOvr),
			fmt.Sprintf("%.0f", r.errPkt),
			fmt.Sprintf("%.0f", r.errTotal),
		})
	}
	table.Render()
	return nil
}
