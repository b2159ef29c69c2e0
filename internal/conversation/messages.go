package conversation

// RestartCommand resets the conversation from any step, compared case-insensitively.
const RestartCommand = "new resume"

// User-facing bot lines.
const (
	MsgGreeting = "Hello! I will help tailor your resume with minimal tweaks.\n" +
		"Step 1: Paste your original resume text below.\n" +
		"Type 'New Resume' anytime to restart."

	MsgResumeReceived     = "Got your resume. Now paste the job posting text next."
	MsgResumeMissing      = "Please paste your resume text."
	MsgJobPostingMissing  = "Please paste the job posting text."
	MsgWorking            = "Working on your resume..."
	MsgDownloadPrompt     = "Would you like a Word (.docx) download? (Yes/No)"
	MsgDownloadReady      = "Here is your Word file:"
	MsgDownloadSkipped    = "Continuing without download. Let me know edits or type New Resume to restart."
	MsgDownloadFailed     = "Sorry, I could not create the Word file. Let me know edits or type New Resume to restart."
	MsgApplyingEdits      = "Applying edits..."
	MsgModelCallFailed    = "Something went wrong generating your resume, please retry"
	msgCompanyFormat      = "Company: %s"
	msgJobTitleFormat     = "Job Title: %s"
	msgCandidateFormat    = "Candidate: %s"
	downloadAcceptKeyword = "yes"
)
