package main

import (
	"github.com/spf13/cobra"

	"github.com/star/orbitrisk/internal/planner"
)

var planReq planner.Request

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print a mission planning report for an orbit as JSON",
	Long: "plan scores the debris risk of the target orbit, estimates its orbital " +
		"lifetime and recommends a launch site. The figures are heuristics.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := planner.Plan(planReq)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

func init() {
	f := planCmd.Flags()
	f.Float64Var(&planReq.SiteLat, "site-lat", 0, "Preferred launch site latitude in degrees")
	f.Float64Var(&planReq.SiteLon, "site-lon", 0, "Preferred launch site longitude in degrees")
	f.Float64Var(&planReq.AltitudeKm, "altitude", 0, "Target altitude in km")
	f.Float64Var(&planReq.InclinationDeg, "inclination", 0, "Target inclination in degrees")
	f.Float64Var(&planReq.MassKg, "mass", 0, "Spacecraft mass in kg")
	f.Float64Var(&planReq.AreaM2, "area", 0, "Cross-sectional area in m^2")
	for _, name := range []string{"altitude", "inclination", "mass"} {
		_ = planCmd.MarkFlagRequired(name)
	}
}
