package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ivlev/slidecast/internal/audio"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/tapsync"
	"github.com/ivlev/slidecast/internal/timeline"
)

var (
	promptsFile string
	scriptsFile string
	audioFile   string
	visualsPath string
	syncScene   int
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a project from prompts, scripts and an audio track",
	Long: `Create a project. Prompts and scripts are read one per line and paired by
position; both files must have the same number of non-empty lines. Scene start
times are spread evenly over the audio track.

With --visuals, a PDF or a directory of images supplies ready-made scene visuals
in order, so no generation is needed for those scenes.`,
	Args: cobra.NoArgs,
	RunE: runNew,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the scenes of a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, _, err := loadProject()
		if err != nil {
			return err
		}
		printScenes(tl)
		return nil
	},
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Discard manual timing and spread scenes evenly over the audio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tl, path, err := loadProject()
		if err != nil {
			return err
		}
		tl.AutoAlign()
		if err := tl.Save(path); err != nil {
			return err
		}
		printScenes(tl)
		return nil
	},
}

var setStartCmd = &cobra.Command{
	Use:   "set-start <scene-id> <seconds>",
	Short: "Set the start time of one scene",
	Args:  cobra.ExactArgs(2),
	RunE:  runSetStart,
}

var syncCmd = &cobra.Command{
	Use:   "sync <seconds>...",
	Short: "Replay recorded taps: each time snaps the next scene to it",
	Long: `Apply taps recorded against the narration, in order. Each tap moves the
start of the first scene that has not started yet to the tap time. With --scene,
a single tap is applied to the scene at that index instead.

A tap that would put a scene before the one preceding it is rejected and leaves
the project unchanged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSync,
}

func init() {
	newCmd.Flags().StringVar(&promptsFile, "prompts", "", "File with one image prompt per line (required)")
	newCmd.Flags().StringVar(&scriptsFile, "scripts", "", "File with one subtitle line per line (required)")
	newCmd.Flags().StringVar(&audioFile, "audio", "", "Audio track (default: most recent file in input/audio/)")
	newCmd.Flags().StringVar(&visualsPath, "visuals", "", "PDF or image directory with ready scene visuals")
	newCmd.MarkFlagRequired("prompts")
	newCmd.MarkFlagRequired("scripts")

	syncCmd.Flags().IntVar(&syncScene, "scene", -1, "Snap the scene at this index instead of the next one")
}

func runNew(cmd *cobra.Command, args []string) error {
	prompts, err := readLines(promptsFile)
	if err != nil {
		return fmt.Errorf("read prompts: %w", err)
	}
	scripts, err := readLines(scriptsFile)
	if err != nil {
		return fmt.Errorf("read scripts: %w", err)
	}

	if audioFile == "" {
		latest, err := audio.FindLatest("input/audio")
		if err != nil {
			return fmt.Errorf("%w. Put the narration in input/audio/", err)
		}
		audioFile = latest
		fmt.Printf("[*] Audio: %s\n", audioFile)
	}
	track, err := (&audio.FFprobeDecoder{}).Decode(cmd.Context(), audioFile)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}

	tl, err := timeline.New(prompts, scripts, track)
	if err != nil {
		var mismatch *timeline.MismatchError
		if errors.As(err, &mismatch) {
			return fmt.Errorf("%s has %d lines but %s has %d: %w", promptsFile, mismatch.Prompts, scriptsFile, mismatch.Scripts, err)
		}
		return err
	}

	if visualsPath != "" {
		if err := attachVisuals(tl, visualsPath); err != nil {
			return err
		}
	}

	path := timeline.ProjectPath(projectsDir)
	if err := tl.Save(path); err != nil {
		return err
	}
	fmt.Printf("[+++] Project created: %s\n", path)
	printScenes(tl)
	return nil
}

// attachVisuals marks scene i ready with visual i of the deck at path.
func attachVisuals(tl *timeline.Timeline, path string) error {
	deck, err := source.OpenDeck(path)
	if err != nil {
		return err
	}
	defer deck.Close()

	scenes := tl.Scenes()
	if deck.Len() != len(scenes) {
		fmt.Printf("[!] %s has %d visuals for %d scenes\n", path, deck.Len(), len(scenes))
	}
	for i, s := range scenes {
		if i >= deck.Len() {
			break
		}
		if err := tl.MarkReady(s.ID, deck.Ref(i)); err != nil {
			return err
		}
	}
	return nil
}

func runSetStart(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("scene id %q: %w", args[0], err)
	}
	start, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("seconds %q: %w", args[1], err)
	}

	tl, path, err := loadProject()
	if err != nil {
		return err
	}
	if start < 0 || start > tl.Duration() {
		return fmt.Errorf("start %.2fs is outside the audio track (0-%.2fs)", start, tl.Duration())
	}
	if err := tl.SetStartTime(id, start); err != nil {
		return err
	}
	if err := tl.Save(path); err != nil {
		return err
	}
	printScenes(tl)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	tl, path, err := loadProject()
	if err != nil {
		return err
	}
	ctrl := tapsync.NewController(tl)

	if syncScene >= 0 && len(args) != 1 {
		return errors.New("--scene takes exactly one tap time")
	}

	applied := 0
	for _, arg := range args {
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("tap %q: %w", arg, err)
		}

		var out tapsync.Outcome
		if syncScene >= 0 {
			out, err = ctrl.SnapScene(syncScene, t)
		} else {
			out, err = ctrl.RecordSync(t)
		}
		if err != nil {
			return err
		}
		if out.Applied {
			applied++
		} else {
			fmt.Printf("[!] Tap at %.2fs ignored: %s\n", t, out.Reason)
		}
	}

	if applied > 0 {
		if err := tl.Save(path); err != nil {
			return err
		}
	}
	printScenes(tl)
	return nil
}
