package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"match-connect/internal/jobs"

	"github.com/spf13/cobra"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPostings(w io.Writer, postings []jobs.Posting) error {
	if len(postings) == 0 {
		fmt.Fprintln(w, "No job postings found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tLOCATION\tTYPE\tLEVEL\tSKILLS")
	for _, p := range postings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Title, p.Location, p.Type, p.ExperienceLevel, strings.Join(p.Skills, ", "))
	}
	return tw.Flush()
}

func (c *CLI) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Browse and manage job postings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(c.jobsListCmd(), c.jobsGetCmd(), c.jobsCreateCmd(), c.jobsUpdateCmd(), c.jobsDeleteCmd())
	return cmd
}

func (c *CLI) jobsListCmd() *cobra.Command {
	var mine bool
	var skip, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job postings",
		RunE: func(cmd *cobra.Command, args []string) error {
			postings := jobs.NewPostings(c.app.client)

			var list []jobs.Posting
			var err error
			if mine {
				list, err = postings.ListMine(cmd.Context(), skip, limit)
			} else {
				list, err = postings.ListAll(cmd.Context(), skip, limit)
			}
			if err != nil {
				return err
			}
			return printPostings(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().BoolVar(&mine, "mine", false, "only postings of the signed-in recruiter")
	cmd.Flags().IntVar(&skip, "skip", 0, "postings to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum postings to return")
	return cmd
}

func (c *CLI) jobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			posting, err := jobs.NewPostings(c.app.client).Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), posting)
		},
	}
}

func (c *CLI) jobsCreateCmd() *cobra.Command {
	var in jobs.PostingInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a job posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			posting, err := jobs.NewPostings(c.app.client).Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created job posting %d\n", posting.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.Title, "title", "", "job title")
	flags.StringVar(&in.Location, "location", "", "job location")
	flags.StringVar(&in.Type, "type", "full-time", "full-time, part-time, contract, internship or remote")
	flags.StringVar(&in.ExperienceLevel, "level", "", "experience level")
	flags.StringVar(&in.SalaryRange, "salary", "", "salary range")
	flags.StringVar(&in.Description, "description", "", "job description")
	flags.StringSliceVar(&in.Skills, "skills", nil, "required skills, comma separated")
	return cmd
}

func (c *CLI) jobsUpdateCmd() *cobra.Command {
	var title, location, jobType, level, salary, description string
	var skills []string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var patch jobs.PostingPatch
			flags := cmd.Flags()
			set := func(name string, value *string, dst **string) {
				if flags.Changed(name) {
					*dst = value
				}
			}
			set("title", &title, &patch.Title)
			set("location", &location, &patch.Location)
			set("type", &jobType, &patch.Type)
			set("level", &level, &patch.ExperienceLevel)
			set("salary", &salary, &patch.SalaryRange)
			set("description", &description, &patch.Description)
			if flags.Changed("skills") {
				patch.Skills = skills
			}

			posting, err := jobs.NewPostings(c.app.client).Update(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), posting)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "job title")
	flags.StringVar(&location, "location", "", "job location")
	flags.StringVar(&jobType, "type", "", "employment type")
	flags.StringVar(&level, "level", "", "experience level")
	flags.StringVar(&salary, "salary", "", "salary range")
	flags.StringVar(&description, "description", "", "job description")
	flags.StringSliceVar(&skills, "skills", nil, "required skills, comma separated")
	return cmd
}

func (c *CLI) jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := jobs.NewPostings(c.app.client).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job posting %d\n", id)
			return nil
		},
	}
}

func (c *CLI) applyCmd() *cobra.Command {
	var in jobs.ApplicationInput

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply to a job posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := jobs.NewApplications(c.app.client).Submit(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted application %d to job posting %d\n", app.ID, app.JobPostingID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&in.JobPostingID, "job", 0, "job posting id")
	flags.StringVar(&in.FullName, "name", "", "full name")
	flags.StringVar(&in.Email, "email", "", "contact email")
	flags.StringVar(&in.Phone, "phone", "", "contact phone")
	flags.StringVar(&in.CoverLetter, "cover-letter", "", "cover letter")
	flags.StringVar(&in.YearsOfExperience, "experience", "", "years of experience")
	flags.StringVar(&in.ExpectedSalary, "salary", "", "expected salary")
	flags.StringVar(&in.ResumeURL, "resume-url", "", "link to a resume")
	return cmd
}

func (c *CLI) resumeCmd() *cobra.Command {
	var candidateID int64

	cmd := &cobra.Command{
		Use:   "upload-resume FILE",
		Short: "Upload a PDF or Word resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			resume, err := jobs.NewResumes(c.app.client).Upload(cmd.Context(), filepath.Base(args[0]), f, candidateID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%d bytes)\n", resume.FileName, resume.SizeBytes)
			return nil
		},
	}

	cmd.Flags().Int64Var(&candidateID, "candidate", 0, "candidate id, defaults to the signed-in user")
	return cmd
}

func (c *CLI) searchCmd() *cobra.Command {
	var in jobs.SearchRequest

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank candidates for a job posting with the AI service",
		RunE: func(cmd *cobra.Command, args []string) error {
			search := jobs.NewAISearch(c.app.cfg.Backend.AISearchURL, c.app.cfg.Backend.AISearchTimeout)
			result, err := search.Search(cmd.Context(), in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Summary != "" {
				fmt.Fprintln(out, result.Summary)
				fmt.Fprintln(out)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CANDIDATE\tSCORE\tSKILLS\tEXPERIENCE")
			for _, rc := range result.RankedCandidates {
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\n",
					rc.CandidateID, rc.FinalScore, rc.Details.SkillScore, rc.Details.ExperienceScore)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&in.JobID, "job", 0, "job posting id")
	cmd.Flags().Int64SliceVar(&in.CandidateIDs, "candidates", nil, "candidate ids, comma separated")
	return cmd
}
