// Copyright (c) 2025 The Capstan developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	pb "gopkg.in/cheggaaa/pb.v1"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/capstanfi/capstan/eventdb"
)

func verifyEventsAction(ctx *cli.Context) error {
	initLogger(ctx)
	gene := selectGenesis(ctx)
	instanceDir := makeInstanceDir(ctx, gene)

	eventDB := openEventDB(instanceDir)
	defer eventDB.Close()

	return verifyEvents(handleExitSignal(), eventDB)
}

// verifyEvents checks that the event feed is replayable: sequence
// numbers are contiguous from 1 and epochs never regress.
func verifyEvents(ctx context.Context, db *eventdb.EventDB) error {
	maxSeq, err := db.MaxSeq(ctx)
	if err != nil {
		return err
	}
	if maxSeq == 0 {
		fmt.Println("event db is empty, nothing to verify")
		return nil
	}

	fmt.Println(">> Verifying event db <<")
	bar := pb.New64(int64(maxSeq)).
		Set64(0).
		SetMaxWidth(90).
		Start()
	defer func() { bar.NotPrint = true }()

	const batch = uint64(512)
	var (
		next  = uint64(1)
		epoch uint64
	)
	for next <= maxSeq {
		rows, err := db.Filter(ctx, &eventdb.Filter{
			Options: &eventdb.Options{Offset: next - 1, Limit: batch},
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return errors.Errorf("event %d missing", next)
		}
		for _, row := range rows {
			if row.Seq != next {
				return errors.Errorf("gap in event sequence: have %d, want %d", row.Seq, next)
			}
			if row.Epoch < epoch {
				return errors.Errorf("event %d: epoch regressed from %d to %d", row.Seq, epoch, row.Epoch)
			}
			if row.Name == "" {
				return errors.Errorf("event %d: empty name", row.Seq)
			}
			epoch = row.Epoch
			next++
			bar.Add64(1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	bar.Finish()
	fmt.Printf("Verified %d events\n", maxSeq)
	return nil
}
