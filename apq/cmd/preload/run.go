/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package preload

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hypermodeinc/graphql-apq/apq/cmd/backend"
	"github.com/hypermodeinc/graphql-apq/graphql/apq"
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/x"
)

// Preload is the sub-command invoked when running "apq preload".
var Preload x.SubCommand

func init() {
	Preload.Cmd = &cobra.Command{
		Use:   "preload",
		Short: "Store the operations of a persisted query manifest",
		Long: `
Preload reads an Apollo persisted query manifest and stores every operation in
it, exactly as if a client had registered it: each one is validated against
the schema first, and an operation already stored keeps its text.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(); err != nil {
				if glog.V(2) {
					fmt.Printf("Error : %+v\n", err)
				} else {
					fmt.Printf("Error : %s\n", err)
				}
				os.Exit(1)
			}
		},
	}
	Preload.EnvPrefix = "APQ_PRELOAD"

	flags := Preload.Cmd.Flags()
	flags.StringP("manifest", "m", "", "Path of the persisted query manifest.")
	flags.String("target", schema.DefaultID, "Id of the schema the operations belong to.")
	flags.Bool("strict", true, "Fail when any operation is rejected.")

	backend.RegisterFlags(flags)
}

// Summary counts what Load did with each operation.
type Summary struct {
	Stored   int
	Existing int
	Rejected int
}

// Load registers every operation of m under schemaID through proc.
func Load(ctx context.Context, proc *apq.Processor, schemaID string, m *Manifest) (
	Summary, error) {

	var sum Summary
	for _, mop := range m.Operations {
		ref, ok := apq.ParseQueryID("1:" + mop.ID)
		if !ok {
			glog.Warningf("Skipping operation %s: id is not a sha256 hash", mop.Name)
			sum.Rejected++
			continue
		}
		op := apq.Normalize(&schema.Request{
			Query:         mop.Body,
			QueryID:       ref.QueryID(),
			OperationName: mop.Name,
		})

		out, err := proc.Process(ctx, schemaID, op)
		if err != nil {
			return sum, errors.Wrapf(err, "while storing operation %s", mop.Name)
		}
		switch {
		case out.Kind != apq.Resolved:
			glog.Warningf("Rejected operation %s (%s): %v", mop.Name, mop.ID, out.Errors)
			sum.Rejected++
		case out.Created:
			sum.Stored++
		default:
			sum.Existing++
		}
	}
	return sum, nil
}

func run() error {
	conf := Preload.Conf
	path := conf.GetString("manifest")
	if path == "" {
		return errors.New("--manifest is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "while opening manifest")
	}
	defer f.Close()
	m, err := ParseManifest(f)
	if err != nil {
		return err
	}

	b, err := backend.Open(Preload)
	if err != nil {
		return err
	}
	defer b.Close()

	start := time.Now()
	sum, err := Load(context.Background(), b.Processor, conf.GetString("target"), m)
	if err != nil {
		return err
	}
	glog.Infof("Preloaded %s operations in %s: %d stored, %d already stored, %d rejected",
		humanize.Comma(int64(len(m.Operations))), time.Since(start).Round(time.Millisecond),
		sum.Stored, sum.Existing, sum.Rejected)

	if sum.Rejected > 0 && conf.GetBool("strict") {
		return errors.Errorf("%d operations of %s were rejected", sum.Rejected, path)
	}
	return nil
}
