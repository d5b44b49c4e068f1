package main

import (
	"fmt"

	"github.com/kjk/gradebook/log"
	"github.com/kjk/gradebook/school"
	"github.com/spf13/cobra"
)

var (
	flagGrade1   float32
	flagGrade2   float32
	flagProject  float32
	flagAbsences int32
	flagRepair   bool
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a student in all subjects of a class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		n, err := db.EnrollInClass(flagRegNo, flagClass)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d enrollments\n", n)
		return nil
	},
}

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Save grades and absences, computing average and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		k := school.EnrollmentKey{RegNo: flagRegNo, ClassID: flagClass, SubjectID: flagSubject}
		g := school.Grades{
			Grade1:   flagGrade1,
			Grade2:   flagGrade2,
			Project:  flagProject,
			Absences: flagAbsences,
		}
		e, err := db.SaveGrades(k, g)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), e)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print report card of a student",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		var rc *school.ReportCard
		if cmd.Flags().Changed("national-id") {
			rc, err = db.ReportCardByNationalID(flagNationalID)
		} else {
			rc, err = db.ReportCard(flagRegNo)
		}
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rc)
	},
}

var examsCmd = &cobra.Command{
	Use:   "exams",
	Short: "List students that have to take an exam",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		res, err := db.StudentsInExam(flagClass)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that record files have no partial records",
	Long: `Prints number of records in every file. A file that ends with a partial
record (e.g. after a crash during append) is reported as corrupt.
With --repair the partial record is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if flagRepair {
			n, err := db.Repair()
			if err != nil {
				return err
			}
			log.Logf("removed %d bytes\n", n)
		}
		w := cmd.OutOrStdout()
		nBad := 0
		for _, fc := range db.Check() {
			if fc.Err != nil {
				nBad++
				fmt.Fprintf(w, "%s: %d records, %s\n", fc.Path, fc.Records, fc.Err)
				continue
			}
			fmt.Fprintf(w, "%s: %d records\n", fc.Path, fc.Records)
		}
		if nBad > 0 {
			return fmt.Errorf("%d files failed the check", nBad)
		}
		return nil
	},
}

func init() {
	enrollCmd.Flags().Int64Var(&flagRegNo, "regno", 0, "registration number")
	enrollCmd.Flags().Int32Var(&flagClass, "class", 0, "class id")
	_ = enrollCmd.MarkFlagRequired("regno")
	_ = enrollCmd.MarkFlagRequired("class")

	gradeCmd.Flags().Int64Var(&flagRegNo, "regno", 0, "registration number")
	gradeCmd.Flags().Int32Var(&flagClass, "class", 0, "class id")
	gradeCmd.Flags().Int32Var(&flagSubject, "subject", 0, "subject id")
	gradeCmd.Flags().Float32Var(&flagGrade1, "grade1", 0, "first grade")
	gradeCmd.Flags().Float32Var(&flagGrade2, "grade2", 0, "second grade")
	gradeCmd.Flags().Float32Var(&flagProject, "project", 0, "project grade")
	gradeCmd.Flags().Int32Var(&flagAbsences, "absences", 0, "number of absences")
	for _, name := range []string{"regno", "class", "subject"} {
		_ = gradeCmd.MarkFlagRequired(name)
	}

	studentKeyFlags(reportCmd)

	examsCmd.Flags().Int32Var(&flagClass, "class", 0, "only this class, 0 means all")

	checkCmd.Flags().BoolVar(&flagRepair, "repair", false, "remove partial records at the end of files")

	rootCmd.AddCommand(enrollCmd, gradeCmd, reportCmd, examsCmd, checkCmd)
}
