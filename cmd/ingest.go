package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"schiene.dev/railplan/parse"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <timetable.zip>",
	Short: "Loads a zipped timetable dump into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  ingest,
}

func ingest(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	s, err := openStorage()
	if err != nil {
		return err
	}

	writer, err := s.Writer()
	if err != nil {
		return err
	}

	if err := parse.ParseTimetable(writer, buf); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	logrus.WithField("file", args[0]).Info("timetable ingested")
	return nil
}
