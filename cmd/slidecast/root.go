package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/timeline"
)

const projectsDir = "projects"

var (
	cfg         *config.Config
	configPath  string
	projectFlag string
)

var rootCmd = &cobra.Command{
	Use:   "slidecast",
	Short: "Narrated slideshow videos synchronized to an audio track",
	Long: `Slidecast builds a narrated slideshow from image prompts, subtitle lines and
an audio track. Scenes can be re-timed by tapping along with the narration in the
preview server, and the result is exported frame-exact to MP4.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range []string{"input/audio", "input/visuals", projectsDir, "output"} {
			os.MkdirAll(d, 0755)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		loaded.BuildVersion = buildVersion
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project file (default: most recent in projects/)")

	rootCmd.AddCommand(newCmd, showCmd, alignCmd, setStartCmd, syncCmd)
	rootCmd.AddCommand(generateCmd, breakdownCmd, checkKeyCmd)
	rootCmd.AddCommand(exportCmd, serveCmd)
}

func projectPath() (string, error) {
	if projectFlag != "" {
		return projectFlag, nil
	}
	latest, err := timeline.FindLatestProject(projectsDir)
	if err != nil {
		return "", fmt.Errorf("%w. Create one with 'slidecast new'", err)
	}
	fmt.Printf("[*] Project: %s\n", latest)
	return latest, nil
}

func loadProject() (*timeline.Timeline, string, error) {
	path, err := projectPath()
	if err != nil {
		return nil, "", err
	}
	tl, err := timeline.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load project: %w", err)
	}
	return tl, path, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return timeline.SplitLines(string(data)), nil
}

func printScenes(tl *timeline.Timeline) {
	fmt.Printf("[*] %d scenes over %.2fs (%s)\n", tl.Len(), tl.Duration(), filepath.Base(tl.Audio().Path))
	for i, s := range tl.Scenes() {
		status := s.Status.Name()
		switch st := s.Status.(type) {
		case timeline.Ready:
			status += " " + st.ImageURL
		case timeline.Failed:
			status += ": " + st.Reason
		}
		fmt.Printf("  %2d  id=%-3d %7.2fs  %-40s [%s]\n", i, s.ID, s.StartTime, truncate(s.Script, 40), status)
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
