/*

Zinbmrf finds differentially abundant taxa between two groups of
samples. Counts are modelled with a zero-inflated negative binomial
distribution; size factors have a Dirichlet process prior and the
differential abundance indicators a Markov random field prior over a
taxon graph.

The basic usage looks like this:

	zinbmrf fit counts.tsv groups.tsv --graph edges.tsv --json summary.json

, this will write posterior probabilities of inclusion to the
standard output. Taxa can be selected with a Bayesian false
discovery rate:

	zinbmrf fdr ppi.tsv --level 0.05

To see all the options run:

	zinbmrf --help

*/
package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("zinbmrf")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers are the package loggers controlled by --loglevel.
var loggers = []string{"zinbmrf", "counts", "dpp", "mrf", "mcmc", "chainstore", "nbfit"}

// command-line options
var (
	// application
	app = kingpin.New("zinbmrf", "differential abundance with zero-inflated negative binomial model").Version(version)

	// technical
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()
	outLogF    = app.Flag("log", "write log to a file").String()
	logLevel   = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")

	fitCmd   = app.Command("fit", "run the sampler")
	fdrCmd   = app.Command("fdr", "select taxa with a Bayesian false discovery rate")
	traceCmd = app.Command("trace", "plot the traces of a stored chain")
)

// setupLogging configures the backend and the level of all loggers.
// It returns a function closing the log file.
func setupLogging() (func(), error) {
	logging.SetFormatter(formatter)

	closer := func() {}
	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return closer, fmt.Errorf("creating log file: %w", err)
		}
		closer = func() { f.Close() }
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		return closer, err
	}
	for _, l := range loggers {
		logging.SetLevel(level, l)
	}
	return closer, nil
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog, err := setupLogging()
	defer closeLog()
	if err != nil {
		log.Fatal(err)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	switch cmd {
	case fitCmd.FullCommand():
		err = runFit()
	case fdrCmd.FullCommand():
		err = runFDR()
	case traceCmd.FullCommand():
		err = runTrace()
	}
	if err != nil {
		log.Error(err)
		pprof.StopCPUProfile()
		closeLog()
		os.Exit(1)
	}
}
