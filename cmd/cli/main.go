/*Command line access to the insight pipeline*/
package main

import (
	"github.com/alecthomas/kong"
)

// globals holds global options
type globals struct {
	Env string `help:"Extra .env file loaded before configuration."`
}

// cli commands / args available
var cli struct {
	Globals globals `embed:""`

	Analyze analyzeCmd `cmd:"" help:"Run one analysis and print the result as JSON."`
	Stream  streamCmd  `cmd:"" help:"Stream a free-form analysis to stdout."`
	Publish publishCmd `cmd:"" help:"Publish archived results to the Notion database."`
	Jobs    jobsCmd    `cmd:"" help:"List queued analysis jobs stored in Redis."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("insights"),
		kong.Description("AI spending insights for ComptaFlow users."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
