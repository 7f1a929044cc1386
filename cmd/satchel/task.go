package main

import (
	"context"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/satchel-dev/satchel/internal/entities"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task. The task is stored locally right away and queued for
upload; --due accepts natural language like "tomorrow" or "next friday".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		priority, _ := cmd.Flags().GetInt("priority")
		due, _ := cmd.Flags().GetString("due")

		task := entities.Task{Title: args[0], Notes: notes, Priority: priority}

		if due != "" {
			parser := when.New(nil)
			parser.Add(en.All...)
			parser.Add(common.All...)
			result, err := parser.Parse(due, time.Now())
			if err != nil || result == nil {
				fatal("could not understand due date %q", due)
			}
			ms := result.Time.UnixMilli()
			task.DueAt = &ms
		}

		if err := task.Validate(); err != nil {
			fatal("%v", err)
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		stored, err := a.Tasks.Create(ctx, task)
		if err != nil {
			fatal("failed to add task: %v", err)
		}
		fmt.Printf("Added task %s: %s\n", stored.ID, stored.Title)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		tasks := a.TaskBinding.Items()
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return
		}
		for _, t := range tasks {
			if t.Done && !all {
				continue
			}
			mark := " "
			if t.Done {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %s  %s", mark, t.ID, t.Title)
			if t.DueAt != nil {
				line += fmt.Sprintf("  (due %s)", time.UnixMilli(*t.DueAt).Format("2006-01-02"))
			}
			fmt.Println(line)
		}
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		task, ok := a.TaskBinding.Live().Get(args[0])
		if !ok {
			fatal("task %s not found", args[0])
		}
		task.Done = true
		if _, err := a.Tasks.Update(ctx, task); err != nil {
			fatal("failed to update task: %v", err)
		}
		fmt.Printf("Done: %s\n", task.Title)
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.Tasks.Delete(ctx, args[0]); err != nil {
			fatal("failed to delete task: %v", err)
		}
		fmt.Printf("Deleted task %s\n", args[0])
	},
}

func init() {
	taskAddCmd.Flags().String("notes", "", "free-form notes")
	taskAddCmd.Flags().Int("priority", 0, "priority 0-3 (higher is more urgent)")
	taskAddCmd.Flags().String("due", "", "due date, natural language accepted")
	taskListCmd.Flags().Bool("all", false, "include completed tasks")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskRmCmd)
	rootCmd.AddCommand(taskCmd)
}
