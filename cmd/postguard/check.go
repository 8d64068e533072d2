package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"postguard/internal/biz"
	"postguard/internal/data"
	"postguard/internal/pkg/moderator"

	"github.com/spf13/cobra"
)

type checkResult struct {
	File    string             `json:"file"`
	Verdict *moderator.Verdict `json:"verdict,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Run local files through moderation and print the verdicts",
		Long: `check runs each image or video through the same pipeline used for uploads.
It exits with status 2 when any file is rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			bc, err := loadConfig(logger)
			if err != nil {
				return err
			}
			mc := bc.Moderation
			classifier, cleanup, err := data.NewClassifier(mc, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			images := data.NewImageModerator(mc, classifier, nil, nil, logger)
			videos := data.NewVideoModerator(mc, classifier, logger)
			uc := biz.NewModerationUsecase(images, videos, nil, nil, logger)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			rejected := 0
			for _, path := range args {
				res := checkFile(cmd, uc, path)
				if res.Verdict == nil || !res.Verdict.IsSafe {
					rejected++
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			if rejected > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d file(s) rejected\n", rejected, len(args))
				return exitCode(2)
			}
			return nil
		},
	}
}

func checkFile(cmd *cobra.Command, uc *biz.ModerationUsecase, path string) checkResult {
	res := checkResult{File: path}
	kind, ok := biz.KindForFilename(path)
	if !ok {
		res.Error = "unsupported file type"
		return res
	}
	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	item := &moderator.MediaItem{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Content:  f,
	}
	v, err := uc.Check(cmd.Context(), kind, item)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Verdict = v
	return res
}
