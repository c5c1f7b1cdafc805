package protocol

// Method names understood by the server.
const (
	MethodInit                = "ask_init"
	MethodEndOfInit           = "ask_end_of_init"
	MethodFirmActiveChoice    = "ask_firm_active_choice_recording"
	MethodFirmOpponentChoice  = "ask_firm_opponent_choice"
	MethodFirmNClients        = "ask_firm_n_clients"
	MethodCustomerFirmChoices = "ask_customer_firm_choices"
	MethodCustomerChoice      = "ask_customer_choice_recording"
	MethodEndOfTurn           = "ask_end_of_turn"
)

