package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/Davydov/zinbmrf/chainstore"
	"bitbucket.org/Davydov/zinbmrf/counts"
	"bitbucket.org/Davydov/zinbmrf/graph"
	"bitbucket.org/Davydov/zinbmrf/mcmc"
	"bitbucket.org/Davydov/zinbmrf/nbfit"
)

// fit command options; negative numbers and NaN mean "keep the
// configured value"
var (
	// input
	countsF    = fitCmd.Arg("counts", "count matrix (samples in rows)").Required().ExistingFile()
	groupsF    = fitCmd.Arg("groups", "group labels of the samples").Required().ExistingFile()
	graphF     = fitCmd.Flag("graph", "taxon graph edge list").ExistingFile()
	structureF = fitCmd.Flag("structure", "structure matrix of the taxonomic tree").ExistingFile()
	sizesF     = fitCmd.Flag("size", "initial size factors (total sum by default)").ExistingFile()
	configF    = fitCmd.Flag("config", "YAML settings file").ExistingFile()

	// model
	noDPP     = fitCmd.Flag("nodpp", "keep the size factors fixed").Bool()
	noMRF     = fitCmd.Flag("nomrf", "ignore the taxon graph").Bool()
	aggregate = fitCmd.Flag("aggregate", "fit every node of the taxonomic tree (requires --structure)").Bool()
	shared    = fitCmd.Flag("shared", "start with all the samples in one size factor cluster").Bool()
	mrfA      = fitCmd.Flag("a", "MRF sparsity parameter").Default("NaN").Float64()
	mrfB      = fitCmd.Flag("b", "MRF smoothness parameter").Default("NaN").Float64()
	fixPi     = fitCmd.Flag("pi", "fix the zero-inflation probability").Default("NaN").Float64()

	// sampler
	iterations = fitCmd.Flag("iter", "number of sweeps including burn-in").Default("-1").Int()
	burnIn     = fitCmd.Flag("burnin", "number of burn-in sweeps").Default("-1").Int()
	report     = fitCmd.Flag("report", "report every N sweeps").Default("-1").Int()
	nChains    = fitCmd.Flag("chains", "number of independent chains").Default("1").Int()
	initMode   = fitCmd.Flag("init", "initial mean and dispersion "+
		"(moderate: mean normalized count and unit dispersion, "+
		"mle: negative binomial maximum likelihood)").
		Default("moderate").Enum("moderate", "mle")
	nThreads = fitCmd.Flag("nt", "number of threads to use").Default("-1").Int()
	seed     = fitCmd.Flag("seed", "random generator seed, -1 for time based").String()

	// output
	outF     = fitCmd.Flag("out", "write posterior probabilities of inclusion to a file").String()
	jsonF    = fitCmd.Flag("json", "write json output to a file").String()
	dbF      = fitCmd.Flag("db", "store the chains in a database").String()
	fdrLevel = fitCmd.Flag("fdr", "Bayesian false discovery rate level").Default("0.05").Float64()
)

// readFile opens a file and passes it to read.
func readFile(fn string, read func(io.Reader) error) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

// settings loads the settings file and applies the command line.
func settings() (*mcmc.Settings, error) {
	s := mcmc.NewSettings()
	if *configF != "" {
		if err := readFile(*configF, s.Load); err != nil {
			return nil, err
		}
		log.Infof("Settings loaded from %s", *configF)
	}
	if *iterations >= 0 {
		s.Iterations = *iterations
	}
	if *burnIn >= 0 {
		s.BurnIn = *burnIn
	}
	if *report > 0 {
		s.ReportPeriod = *report
	}
	if *nThreads > 0 {
		s.Threads = *nThreads
	}
	if *noDPP {
		s.UseDPP = false
	}
	if *noMRF {
		s.UseMRF = false
	}
	if *aggregate {
		s.Aggregate = true
	}
	if *shared {
		s.SharedCluster = true
	}
	if !math.IsNaN(*mrfA) {
		s.MRF.A = *mrfA
	}
	if !math.IsNaN(*mrfB) {
		s.MRF.B = *mrfB
	}
	if !math.IsNaN(*fixPi) {
		s.Inflation.Fixed = true
		s.Inflation.Pi = *fixPi
	}
	if w := chainStorage(s, *dbF); w != "" {
		log.Warning(w)
	}

	switch *seed {
	case "":
	case "-1":
		s.Seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	default:
		v, err := strconv.ParseInt(*seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", *seed, err)
		}
		s.Seed = v
	}
	log.Infof("Random seed=%v", s.Seed)
	return s, s.Validate()
}

// chainStorage routes store_chain to the chain database; the command
// keeps no snapshots in memory. It returns a warning if the setting
// cannot be honoured.
func chainStorage(s *mcmc.Settings, db string) string {
	keep := s.StoreChain
	s.StoreChain = false
	if keep && db == "" {
		return "store_chain is set but no database is given (--db), the chains are not stored"
	}
	return ""
}

// input reads all the input files.
func input() (*mcmc.Input, error) {
	in := &mcmc.Input{}
	err := readFile(*countsF, func(r io.Reader) (err error) {
		in.Counts, err = counts.ReadMatrix(r)
		return
	})
	if err != nil {
		return nil, err
	}
	m := in.Counts
	log.Infof("Read %d samples and %d taxa, %d zero counts", m.NSamples(), m.NTaxa(), m.Zeros())

	err = readFile(*groupsF, func(r io.Reader) (err error) {
		in.Groups, err = counts.ReadGroups(r, m.Samples)
		return
	})
	if err != nil {
		return nil, err
	}
	if *sizesF != "" {
		err = readFile(*sizesF, func(r io.Reader) (err error) {
			in.Sizes, err = counts.ReadSizes(r, m.Samples)
			return
		})
		if err != nil {
			return nil, err
		}
	}
	names := m.Taxa
	if *structureF != "" {
		err = readFile(*structureF, func(r io.Reader) (err error) {
			in.Structure, err = counts.ReadStructure(r, m.Taxa)
			return
		})
		if err != nil {
			return nil, err
		}
		names = in.Structure.Nodes
		log.Infof("Read taxonomic tree of %d nodes", in.Structure.NNodes())
	}
	if *graphF != "" {
		err = readFile(*graphF, func(r io.Reader) (err error) {
			in.Graph, err = graph.Read(r, names)
			return
		})
		if err != nil {
			return nil, err
		}
		log.Infof("Read graph of %d nodes and %d edges, %d isolated", in.Graph.Len(), in.Graph.NEdges(), in.Graph.Isolated())
	}
	return in, nil
}

// initialValues computes maximum likelihood estimates of the
// negative binomial parameters of every fitted feature.
func initialValues(ctx context.Context, in *mcmc.Input, s *mcmc.Settings) error {
	m := in.Counts
	if s.Aggregate && in.Structure != nil {
		var err error
		if m, err = m.Aggregate(in.Structure); err != nil {
			return err
		}
	}
	d, err := counts.NewDesign(m, in.Groups, in.Sizes)
	if err != nil {
		return err
	}
	b := nbfit.DefaultBounds()
	b.MinPhi, b.MaxPhi = s.Dispersion.MinPhi, s.Dispersion.MaxPhi
	in.Initial, err = nbfit.Matrix(ctx, d, b, s.Threads)
	return err
}

func runFit() error {
	startTime := time.Now()

	s, err := settings()
	if err != nil {
		return err
	}
	in, err := input()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *initMode == "mle" {
		log.Info("Using maximum likelihood initial values")
		if err := initialValues(ctx, in, s); err != nil {
			return err
		}
	}

	var rec mcmc.Recorder
	var store *chainstore.Store
	if *dbF != "" {
		store, err = chainstore.Open(*dbF, 10)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = store
	}

	log.Infof("Using threads: %d, chains: %d", s.Threads, *nChains)
	ch, err := mcmc.RunChains(ctx, in, s, *nChains, rec)
	if err != nil {
		return err
	}

	summary := newFitSummary(s, ch)
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = s.Seed
	summary.NThreads = s.Threads * *nChains
	summary.GoMaxProcs = runtime.GOMAXPROCS(0)

	if err := summary.selectTaxa(*fdrLevel); err != nil {
		return err
	}

	out := os.Stdout
	if *outF != "" {
		out, err = os.Create(*outF)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer out.Close()
	}
	if err := writePPI(out, summary); err != nil {
		return err
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.TotalTime = deltaT.Seconds()

	if store != nil {
		if err := store.SaveSummary(summary); err != nil {
			log.Error("Error saving summary:", err)
		}
	}

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		log.Debug(string(j))
		if err := os.WriteFile(*jsonF, j, 0666); err != nil {
			return fmt.Errorf("creating json output file: %w", err)
		}
	}
	return nil
}
