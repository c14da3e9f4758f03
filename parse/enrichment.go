package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

type PlatformCSV struct {
	ID            string `csv:"platform_id"`
	Name          string `csv:"platform_name"`
	Height        int    `csv:"height_cm"`
	Length        int    `csv:"length_m"`
	ParentStation string `csv:"parent_station"`
}

type DelayPatternCSV struct {
	TrainNumber string  `csv:"train_number"`
	StationName string  `csv:"station_name"`
	HourOfDay   int     `csv:"hour_of_day"`
	AvgDelay    float64 `csv:"avg_delay"`
}

func ParsePlatforms(writer storage.TimetableWriter, data io.Reader) error {
	platformCsv := []*PlatformCSV{}
	if err := gocsv.Unmarshal(data, &platformCsv); err != nil {
		return fmt.Errorf("unmarshaling platforms: %w", err)
	}

	for i, p := range platformCsv {
		if p.ID == "" {
			return fmt.Errorf("empty platform_id (row %d)", i+1)
		}
		if p.ParentStation == "" {
			return fmt.Errorf("platform '%s' has no parent_station", p.ID)
		}

		err := writer.WritePlatform(&model.Platform{
			ID:              p.ID,
			Name:            p.Name,
			Height:          p.Height,
			Length:          p.Length,
			ParentStationID: p.ParentStation,
		})
		if err != nil {
			return fmt.Errorf("writing platform '%s': %w", p.ID, err)
		}
	}

	return nil
}

func ParseDelayPatterns(writer storage.TimetableWriter, data io.Reader) error {
	patternCsv := []*DelayPatternCSV{}
	if err := gocsv.Unmarshal(data, &patternCsv); err != nil {
		return fmt.Errorf("unmarshaling delay patterns: %w", err)
	}

	for i, d := range patternCsv {
		if d.TrainNumber == "" {
			return fmt.Errorf("empty train_number (row %d)", i+1)
		}
		if d.HourOfDay < 0 || d.HourOfDay > 23 {
			return fmt.Errorf("invalid hour_of_day %d for train '%s'", d.HourOfDay, d.TrainNumber)
		}

		err := writer.WriteDelayPattern(&storage.DelayPattern{
			TrainNumber: d.TrainNumber,
			StationName: d.StationName,
			HourOfDay:   d.HourOfDay,
			AvgDelay:    d.AvgDelay,
		})
		if err != nil {
			return fmt.Errorf("writing delay pattern for train '%s': %w", d.TrainNumber, err)
		}
	}

	return nil
}
