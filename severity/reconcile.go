package severity

// Reconcile merges the rule verdict with the model verdict. The more severe
// one wins, so the result is never below the rule's safety floor.
func Reconcile(rule, model Severity) Severity {
	if rule > model {
		return rule
	}
	return model
}
