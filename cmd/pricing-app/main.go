// pricing-app serves the Slack pricing-change workflow.
package main

import (
	"os"

	"github.com/dataeng/pricingflow/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
