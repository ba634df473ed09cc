/*
Package dsl provides a fluent Go builder for constructing flow
definitions programmatically, instead of loading them from YAML or JSON
files. This is useful for dynamic flow generation, unit testing, and
IDE-assisted authoring.

Example usage:

	steps, err := dsl.New().
		Step("welcome").Content("Welcome!", "Let's get you set up.").
		Step("profile").Form().Title("Your profile").
		Step("beta").If(func(fc *flow.Context) bool {
			v, _ := fc.Value("beta_tester")
			return v == true
		}).Content("Beta features", "").
		Step("done").Content("All set", "").
		Build()
*/
package dsl
