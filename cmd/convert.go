package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"DBCConverter/dbc"
)

// convert runs the whole dbc-to-workbook pipeline. A panic anywhere in the
// pipeline is recovered into the returned error with its stack attached.
func convert(input, output string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert %s: %v\n%s", input, r, debug.Stack())
		}
	}()

	fmt.Printf("Parsing DBC file: %s\n", input)
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	parser := dbc.NewParser(f)
	if !parser.Parse() {
		return fmt.Errorf("parse %s: %w", input, parser.Err())
	}

	data := parser.Model()
	if data.OrphanSignals > 0 {
		log.Warnf("Discarded %d signal(s) with no preceding message", data.OrphanSignals)
	}

	fmt.Printf("Creating Excel workbook: %s\n", output)
	if err := dbc.WriteExcel(data, output); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	fmt.Printf("Excel file created successfully: %s\n", output)
	fmt.Printf("  Nodes: %d\n", len(data.Nodes))
	fmt.Printf("  Messages: %d\n", len(data.BoVOList))
	fmt.Printf("  Signals: %d\n", data.SignalCount())
	fmt.Printf("  Value Tables: %d\n", len(data.ValTableVOList))
	fmt.Printf("  Custom Properties: %d\n", len(data.BaDefVOList))

	return nil
}
