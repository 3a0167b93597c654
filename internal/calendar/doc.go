// Package calendar decides which reminders list each exported task lands in.
//
// Placement is a two step policy. A [Classifier] proposes a name:
//   - [RuleClassifier] : tag to list rules from the config file
//   - [CommandClassifier] : an external command such as the llm CLI
//   - [Chain] : several classifiers, first answer wins
//
// The [Selector] then validates the proposal against the lists that actually exist and
// falls back to the configured default when classification fails or names an unknown
// list. The selector never returns an error.
package calendar
