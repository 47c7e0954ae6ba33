package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"bitbucket.org/Davydov/zinbmrf/fdr"
)

var (
	ppiF        = fdrCmd.Arg("ppi", "feature table written by fit").Required().ExistingFile()
	selectLevel = fdrCmd.Flag("level", "Bayesian false discovery rate level").Default("0.05").Float64()
)

// printDiscoveries writes the selected features and their ppi.
func printDiscoveries(w io.Writer, features []string, ppi []float64, level float64) error {
	idx, t, err := fdr.Discoveries(ppi, level)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if len(idx) == 0 {
		fmt.Fprintf(bw, "# no features selected at level %v\n", level)
	} else {
		fmt.Fprintf(bw, "# level=%v threshold=%v rate=%.6g selected=%d\n", level, t, fdr.Rate(ppi, t), len(idx))
	}
	for _, j := range idx {
		fmt.Fprintf(bw, "%s\t%v\n", features[j], ppi[j])
	}
	return bw.Flush()
}

func runFDR() error {
	var features []string
	var ppi []float64
	err := readFile(*ppiF, func(r io.Reader) (err error) {
		features, ppi, err = readPPI(r)
		return
	})
	if err != nil {
		return err
	}
	log.Infof("Read %d features", len(features))
	return printDiscoveries(os.Stdout, features, ppi, *selectLevel)
}
