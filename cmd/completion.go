package cmd

import (
	"flag"

	"github.com/etnz/valuation"
	"github.com/etnz/valuation/docs"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// flagPredictors predicts the values of some flags by name; others accept
// anything, and booleans nothing.
var flagPredictors = map[string]complete.Predictor{
	"config": predict.Files("*.toml"),
	"scope":  predict.Set{string(valuation.ScopePortfolio), string(valuation.ScopeAsset)},
}

// Completion describes the pve command line for shell completion.
func Completion() *complete.Command {
	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: predictors(flag.CommandLine),
	}
	for _, cmds := range commands() {
		for _, c := range cmds {
			fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			c.SetFlags(fs)
			sub := &complete.Command{Flags: predictors(fs)}
			switch c.Name() {
			case "add":
				sub.Flags["t"] = predict.Set{"BUY", "SELL", "DIVIDEND", "FEE", "SPLIT"}
			case "goal":
				sub.Args = predict.Set{"add", "edit", "delete"}
			case "topic":
				topics, _ := docs.GetAllTopics()
				sub.Args = predict.Set(append(topics, "*"))
			}
			root.Sub[c.Name()] = sub
		}
	}
	return root
}

func predictors(fs *flag.FlagSet) map[string]complete.Predictor {
	res := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if p, ok := flagPredictors[f.Name]; ok {
			res[f.Name] = p
			return
		}
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			res[f.Name] = predict.Nothing
			return
		}
		res[f.Name] = predict.Something
	})
	return res
}
