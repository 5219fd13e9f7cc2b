package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/manningwu07/modelzoo/params"
)

var (
	modeFlag       string
	configFlag     string
	checkpointFlag string
	wavFlag        string
	tokenizerFlag  string
	textFlag       string
	questionFlag   string
	outFlag        string
	modelFlag      string
	assessFlag     string
	numLabelsFlag  int
	maxLenFlag     int
	maxAnswerFlag  int
	seedFlag       uint64
	debugFlag      bool
)

func init() {
	flag.StringVar(&modeFlag, "mode", "", "transcribe | classify | squad | init | export-config")
	flag.StringVar(&configFlag, "config", "", "JSON config override (see -mode export-config)")
	flag.StringVar(&checkpointFlag, "checkpoint", "", "gob checkpoint to load; random weights when empty")
	flag.StringVar(&wavFlag, "wav", "", "WAV file to transcribe")
	flag.StringVar(&tokenizerFlag, "tokenizer", "", "tokenizer.json for classify and squad")
	flag.StringVar(&textFlag, "text", "", "sentence to classify, or the squad context")
	flag.StringVar(&questionFlag, "question", "", "squad question")
	flag.StringVar(&outFlag, "out", "", "output path for init and export-config")
	flag.StringVar(&modelFlag, "model", "deepspeech", "model kind for -mode init: deepspeech | albert-cls | albert-squad")
	flag.StringVar(&assessFlag, "assessment", "accuracy", "classification assessment method")
	flag.IntVar(&numLabelsFlag, "labels", 2, "number of classification labels")
	flag.IntVar(&maxLenFlag, "max-len", 128, "token sequence length")
	flag.IntVar(&maxAnswerFlag, "max-answer", 30, "longest answer span in tokens")
	flag.Uint64Var(&seedFlag, "seed", 42, "seed for random initialization")
	flag.BoolVar(&debugFlag, "debug", false, "verbose debug logging")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	seed := params.ApplyEnv(seedFlag)
	if debugFlag {
		params.Debug = true
	}
	if configFlag != "" {
		if err := params.Load(configFlag); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	var err error
	switch modeFlag {
	case "transcribe":
		err = transcribe(wavFlag, checkpointFlag, seed)
	case "classify":
		err = classify(tokenizerFlag, textFlag, checkpointFlag, seed)
	case "squad":
		err = squad(tokenizerFlag, questionFlag, textFlag, checkpointFlag, seed)
	case "init":
		err = initCheckpoint(modelFlag, outFlag, seed)
	case "export-config":
		if outFlag == "" {
			err = fmt.Errorf("export-config needs -out")
		} else {
			err = params.Export(outFlag)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
