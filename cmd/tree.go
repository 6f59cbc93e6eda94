package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"squirrelctl/internal/filetree"
	"squirrelctl/internal/models"
	"squirrelctl/internal/project"
	"squirrelctl/pkg/utils"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Edit the package file layout",
	Long: `Edit the files that go into the package.

Nodes are addressed by their display path inside the package, for example
"bin/app.exe". An empty target or "/" means the top level. Adding a file
that is already in the tree moves it to the new place. Adding a top-level
.exe makes it the main executable when none is set.`,
}

var treeListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the package files depth-first",
	Example: `  squirrelctl tree list -p acme.asproj`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return fail("tree list", err)
		}
		return printTree(p, "tree list")
	},
}

var treeAddCmd = &cobra.Command{
	Use:   "add <paths...>",
	Short: "Add files or folders",
	Long: `Add files or folders from disk. Folders are added recursively. Debug
symbols (.pdb), packages (.nupkg) and .vshost. files are skipped.`,
	Example: `  # Add the build output to the top level
  squirrelctl tree add -p acme.asproj bin/Release/*

  # Add a folder inside an existing one
  squirrelctl tree add -p acme.asproj assets --to resources`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree add", func(p *project.Project) error {
			if err := utils.ValidatePaths(args); err != nil {
				return err
			}
			to, _ := cmd.Flags().GetString("to")
			target, err := resolveTarget(p.Tree, to)
			if err != nil {
				return err
			}
			_, err = p.DropPaths(args, target)
			return err
		})
	},
}

var treeMkdirCmd = &cobra.Command{
	Use:   "mkdir [name]",
	Short: "Create a folder",
	Long: `Create a folder. Without a name it is called "NEW FOLDER", numbered
when a sibling already uses the name. A --fixed folder needs a name and can
be neither moved nor removed afterwards.`,
	Example: `  squirrelctl tree mkdir -p acme.asproj resources
  squirrelctl tree mkdir -p acme.asproj --in resources
  squirrelctl tree mkdir -p acme.asproj --fixed plugins`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree mkdir", func(p *project.Project) error {
			in, _ := cmd.Flags().GetString("in")
			target, err := resolveTarget(p.Tree, in)
			if err != nil {
				return err
			}
			if fixed, _ := cmd.Flags().GetBool("fixed"); fixed {
				if len(args) == 0 {
					return errors.New("a fixed folder needs a name")
				}
				_, err := p.NewFixedFolder(args[0], target)
				return err
			}
			id := p.NewFolder(target)
			if len(args) == 1 {
				return p.Rename(id, args[0])
			}
			return nil
		})
	},
}

var treeMoveCmd = &cobra.Command{
	Use:   "mv <nodes...> <target>",
	Short: "Move nodes into a folder",
	Long: `Move nodes into target. A file target means its folder. Fixed folders
cannot be moved and a folder cannot move into itself.`,
	Example: `  squirrelctl tree mv -p acme.asproj app.exe core.dll bin
  squirrelctl tree mv -p acme.asproj bin/app.exe /`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree mv", func(p *project.Project) error {
			target, err := resolveTarget(p.Tree, args[len(args)-1])
			if err != nil {
				return err
			}
			var ids []filetree.NodeID
			for _, path := range args[:len(args)-1] {
				id, err := resolveNode(p.Tree, path)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return errors.Join(p.Move(ids, target)...)
		})
	},
}

var treeRenameCmd = &cobra.Command{
	Use:     "rename <node> <name>",
	Short:   "Change the name a node takes in the package",
	Example: `  squirrelctl tree rename -p acme.asproj "NEW FOLDER" resources`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree rename", func(p *project.Project) error {
			id, err := resolveNode(p.Tree, args[0])
			if err != nil {
				return err
			}
			return p.Rename(id, args[1])
		})
	},
}

var treeRemoveCmd = &cobra.Command{
	Use:     "rm <node>",
	Short:   "Remove a node and everything below it",
	Example: `  squirrelctl tree rm -p acme.asproj bin/app.pdb`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree rm", func(p *project.Project) error {
			id, err := resolveNode(p.Tree, args[0])
			if err != nil {
				return err
			}
			_, err = p.Remove(id)
			return err
		})
	},
}

var treeRemoveAllCmd = &cobra.Command{
	Use:   "rm-all <node>",
	Short: "Remove a node and all of its siblings",
	Long: `Remove every node at the level of <node>, <node> included. Fixed folders
are kept.`,
	Example: `  squirrelctl tree rm-all -p acme.asproj app.exe`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTree(cmd, "tree rm-all", func(p *project.Project) error {
			id, err := resolveNode(p.Tree, args[0])
			if err != nil {
				return err
			}
			_, err = p.RemoveAll(id)
			return err
		})
	},
}

// editTree loads the project, applies edit, saves and prints the tree.
func editTree(cmd *cobra.Command, command string, edit func(p *project.Project) error) error {
	p, err := loadProject(cmd)
	if err != nil {
		return fail(command, err)
	}
	if err := edit(p); err != nil {
		return fail(command, err)
	}
	if err := p.Save(); err != nil {
		return fail(command, err)
	}
	if isVerbose(cmd) {
		cmd.PrintErrf("Project saved: %s (%d nodes)\n", p.Path, p.Tree.Len())
	}
	return printTree(p, command)
}

func printTree(p *project.Project, command string) error {
	entries, err := treeEntries(p.Tree)
	if err != nil {
		return fail(command, err)
	}
	if err := utils.PrintJSON(entries); err != nil {
		return fail(command, err)
	}
	return nil
}

func treeEntries(tree *filetree.Tree) ([]models.TreeEntry, error) {
	entries := make([]models.TreeEntry, 0, tree.Len())
	err := tree.Walk(func(n filetree.Node, dir []string) error {
		e := models.TreeEntry{
			ID:          string(n.ID),
			Path:        tree.Path(n.ID),
			Depth:       len(dir),
			IsDirectory: n.IsDirectory,
			IsRootFixed: n.IsRootFixed,
			SourcePath:  n.SourcePath,
			Size:        utils.FormatBytes(n.SizeBytes),
		}
		if !n.LastModified.IsZero() {
			e.LastModified = utils.FormatTime(n.LastModified)
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func init() {
	treeCmd.AddCommand(treeListCmd)
	treeCmd.AddCommand(treeAddCmd)
	treeCmd.AddCommand(treeMkdirCmd)
	treeCmd.AddCommand(treeMoveCmd)
	treeCmd.AddCommand(treeRenameCmd)
	treeCmd.AddCommand(treeRemoveCmd)
	treeCmd.AddCommand(treeRemoveAllCmd)

	treeAddCmd.Flags().String("to", "", "Folder to add into (default: top level)")
	treeMkdirCmd.Flags().String("in", "", "Folder to create the new folder in (default: top level)")
	treeMkdirCmd.Flags().Bool("fixed", false, "Create a folder that cannot be moved or removed")
}
