package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage a target's recent image list",
}

var imageRecordCmd = &cobra.Command{
	Use:   "record IMAGE_ID",
	Short: "Record a freshly built image as the newest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		params, err := env.params(cmd)
		if err != nil {
			return err
		}

		images, err := params.RecordImage(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Recorded %s for %s (%d kept)\n", args[0], params.Scope(), len(images))
		return nil
	},
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded images, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		params, err := env.params(cmd)
		if err != nil {
			return err
		}

		images, err := params.Images(cmd.Context())
		if err != nil {
			return err
		}
		if len(images) == 0 {
			fmt.Println("No images recorded")
			return nil
		}
		for i, id := range images {
			marker := " "
			if i == 0 {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, id)
		}
		return nil
	},
}

func init() {
	imageCmd.AddCommand(imageRecordCmd)
	imageCmd.AddCommand(imageListCmd)
}
