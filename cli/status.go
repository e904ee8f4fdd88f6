// ABOUTME: Status CLI command summarizing local sync state
// ABOUTME: Reads per-source state files without touching the network
package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/harperreed/commsync/config"
	"github.com/harperreed/commsync/models"
	"github.com/harperreed/commsync/state"
)

// StatusCommand prints what each source's state file says was delivered.
func StatusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = state.DefaultDir()
	}

	fmt.Printf("Agent %s\n", cfg.AgentID)
	fmt.Printf("Server: %s\n", cfg.ServerURL)
	fmt.Printf("State:  %s\n\n", stateDir)

	for _, source := range models.AllSources {
		if _, err := os.Stat(state.Path(stateDir, source)); os.IsNotExist(err) {
			fmt.Printf("  %-10s never synced\n", source)
			continue
		}

		st, err := state.Open(stateDir, source)
		if err != nil {
			fmt.Printf("  ✗ %-10s %v\n", source, err)
			continue
		}

		line := fmt.Sprintf("  %-10s %d items delivered", source, st.Len())
		if hw := st.HighWater(); !hw.IsZero() {
			line += fmt.Sprintf(", newest %s", hw.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println(line)
	}

	return nil
}
