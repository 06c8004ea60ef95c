// Package keyword implements deterministic, category-based lexical matching
// of questions against business rules.
//
// Each category has trigger terms, looked up in the question, and target
// terms, looked up in the rule's name and description. A rule scores one
// point per category whose triggers and targets both match, so the score is a
// small count of concepts shared with the question rather than a term
// frequency.
//
// Terms match at word starts after normalization: "hora" matches "horas" and
// "HORAS_PJ", but "pj" does not match inside "cnpj".
//
// The built-in table covers payments (PIX), legal entities (CNPJ),
// individuals (CPF), validation/registration and hour calculations. It can be
// replaced with a YAML file:
//
//	categories:
//	  - name: pagamento
//	    triggers: [pagamento, pix, boleto]
//	    targets: [pagamento, pix]
package keyword
