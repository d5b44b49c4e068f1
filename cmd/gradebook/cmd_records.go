package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/recfile"
	"github.com/kjk/gradebook/school"
	"github.com/spf13/cobra"
)

var entityNames = []string{"students", "classes", "subjects", "enrollments", "roster"}

// loadEntity loads all records of one entity type.
// Returns records even with recfile.ErrTruncated.
func loadEntity(db *school.DB, name string, maxRecords int) (any, error) {
	switch name {
	case "students":
		return db.Students.LoadAll(maxRecords)
	case "classes":
		return db.Classes.LoadAll(maxRecords)
	case "subjects":
		return db.Subjects.LoadAll(maxRecords)
	case "enrollments":
		return db.Enrollments.LoadAll(maxRecords)
	case "roster":
		return db.Roster.LoadAll(maxRecords)
	}
	return nil, fmt.Errorf("unknown entity '%s', must be one of: %s", name, strings.Join(entityNames, ", "))
}

// loadEntityWarn is loadEntity where ErrTruncated only logs a warning
func loadEntityWarn(db *school.DB, name string) (any, error) {
	v, err := loadEntity(db, name, db.MaxRecords)
	if errors.Is(err, recfile.ErrTruncated) {
		log.Logf("warning: %s\n", err)
		err = nil
	}
	return v, err
}

var dumpCmd = &cobra.Command{
	Use:       "dump <entity>",
	Short:     "Print all records as JSON",
	Long:      `Prints records of students, classes, subjects, enrollments or roster as JSON, in file order.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: entityNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		v, err := loadEntityWarn(db, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), v)
	},
}

var inspectCmd = &cobra.Command{
	Use:       "inspect <entity>",
	Short:     "Print decoded records with Go types",
	Args:      cobra.ExactArgs(1),
	ValidArgs: entityNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		v, err := loadEntityWarn(db, args[0])
		if err != nil {
			return err
		}
		cs := spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		}
		cs.Fdump(cmd.OutOrStdout(), v)
		return nil
	},
}

var (
	flagRegNo      int64
	flagNationalID string
	flagName       string
	flagPhone      string
	flagID         int32
	flagClass      int32
	flagSubject    int32
)

// studentKeyFlags adds --regno and --national-id
func studentKeyFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&flagRegNo, "regno", 0, "registration number")
	cmd.Flags().StringVar(&flagNationalID, "national-id", "", "national id")
	cmd.MarkFlagsOneRequired("regno", "national-id")
	cmd.MarkFlagsMutuallyExclusive("regno", "national-id")
}

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Find a student by registration number or national id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		var st school.Student
		var found bool
		if cmd.Flags().Changed("national-id") {
			st, found, err = db.Students.FindByNationalID(flagNationalID)
		} else {
			st, found, err = db.Students.FindByRegNo(flagRegNo)
		}
		if err != nil {
			return err
		}
		if !found {
			return school.ErrStudentNotFound
		}
		return writeJSON(cmd.OutOrStdout(), st)
	},
}

// idFromFlag returns --id or a generated id if not given
func idFromFlag(cmd *cobra.Command) int32 {
	if cmd.Flags().Changed("id") {
		return flagID
	}
	return school.NewID(time.Now())
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a record",
}

var addStudentCmd = &cobra.Command{
	Use:   "student",
	Short: "Append a student",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("regno") {
			flagRegNo = school.NewRegNo(time.Now())
		}
		st := school.Student{
			RegNo:      flagRegNo,
			Name:       flagName,
			NationalID: flagNationalID,
			Phone:      flagPhone,
		}
		if err = db.Students.Append(st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "student %d\n", st.RegNo)
		return nil
	},
}

var addClassCmd = &cobra.Command{
	Use:   "class",
	Short: "Append a class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		c := school.Class{ID: idFromFlag(cmd), Name: flagName}
		if err = db.Classes.Append(c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "class %d\n", c.ID)
		return nil
	},
}

var addSubjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Append a subject",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		sub := school.Subject{ID: idFromFlag(cmd), Name: flagName}
		if err = db.Subjects.Append(sub); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "subject %d\n", sub.ID)
		return nil
	},
}

var addRosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Link a subject to a class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		return db.Roster.Append(school.ClassSubject{ClassID: flagClass, SubjectID: flagSubject})
	},
}

func init() {
	studentKeyFlags(studentCmd)

	addStudentCmd.Flags().Int64Var(&flagRegNo, "regno", 0, "registration number, generated if not given")
	addStudentCmd.Flags().StringVar(&flagName, "name", "", "name")
	addStudentCmd.Flags().StringVar(&flagNationalID, "national-id", "", "national id")
	addStudentCmd.Flags().StringVar(&flagPhone, "phone", "", "phone")

	for _, c := range []*cobra.Command{addClassCmd, addSubjectCmd} {
		c.Flags().Int32Var(&flagID, "id", 0, "id, generated if not given")
		c.Flags().StringVar(&flagName, "name", "", "name")
	}

	addRosterCmd.Flags().Int32Var(&flagClass, "class", 0, "class id")
	addRosterCmd.Flags().Int32Var(&flagSubject, "subject", 0, "subject id")
	_ = addRosterCmd.MarkFlagRequired("class")
	_ = addRosterCmd.MarkFlagRequired("subject")

	addCmd.AddCommand(addStudentCmd, addClassCmd, addSubjectCmd, addRosterCmd)
	rootCmd.AddCommand(dumpCmd, inspectCmd, studentCmd, addCmd)
}
