package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/praxislearn/praxis-cli/internal/handler"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/service"
)

// ─── Login / Logout ────────────────────────────────────────────────────

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	sso := fs.Bool("sso", false, "log in through the browser identity provider")
	_ = fs.Parse(args)

	if *sso {
		return a.loginSSO(ctx)
	}
	return a.loginWithCode(ctx, *email)
}

func (a *app) loginWithCode(ctx context.Context, email string) error {
	reader := bufio.NewReader(os.Stdin)

	if email == "" {
		fmt.Print("Email: ")
		line, _ := reader.ReadString('\n')
		email = strings.TrimSpace(line)
	}
	if email == "" {
		return fmt.Errorf("an email address is required")
	}

	if err := a.sessions.RequestCode(ctx, email); err != nil {
		return err
	}
	fmt.Printf("A verification code was sent to %s.\n", email)

	fmt.Print("Code: ")
	byteCode, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading the code: %w", err)
	}
	code := strings.TrimSpace(string(byteCode))
	if code == "" {
		return fmt.Errorf("a verification code is required")
	}

	if err := a.sessions.LoginWithCode(ctx, email, code); err != nil {
		return err
	}
	return a.printWelcome()
}

func (a *app) loginSSO(ctx context.Context) error {
	if a.cfg.SSOLoginURL == "" {
		return fmt.Errorf("PRAXIS_SSO_LOGIN_URL is not configured")
	}

	fmt.Printf("Open the following URL in your browser to log in:\n\n  %s\n\nWaiting for the redirect...\n", a.cfg.SSOLoginURL)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	sso := handler.NewSSOHandler(a.log)
	tokens, err := sso.WaitForTokens(waitCtx, a.cfg.SSOCallbackPort)
	if err != nil {
		return err
	}
	if err := a.sessions.ProcessTokens(ctx, tokens); err != nil {
		return err
	}
	return a.printWelcome()
}

func (a *app) printWelcome() error {
	snap := a.sessions.CachedUser()
	if snap == nil {
		fmt.Println("Logged in.")
		return nil
	}
	fmt.Printf("Logged in as %s (%s).\n", snap.User.Username, snap.User.Email)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	a.sessions.Logout(ctx)
	fmt.Println("Logged out.")
	return nil
}

// ─── Profile / Dashboard ───────────────────────────────────────────────

func (a *app) cmdWhoami(ctx context.Context) error {
	if !a.sessions.VerifySession(ctx) {
		return fmt.Errorf("not logged in")
	}
	snap := a.sessions.CachedUser()
	if snap == nil {
		return fmt.Errorf("no cached profile")
	}
	u := snap.User
	fmt.Printf("%s <%s>\nid: %s\n", u.Username, u.Email, u.ID)
	if u.LastLogin != nil {
		fmt.Printf("last login: %s\n", u.LastLogin.Format(time.RFC1123))
	}
	return nil
}

func (a *app) cmdDashboard(ctx context.Context) error {
	if err := a.requireSession(ctx, false); err != nil {
		return err
	}
	snap := a.sessions.CachedUser()
	if snap == nil {
		return fmt.Errorf("no cached profile")
	}
	u := snap.User

	fmt.Printf("%s\n\nOverall average: %.1f/100 over %d evaluations\n", u.Username, u.AverageScore, u.TotalEvaluations)

	if len(u.CourseScores) > 0 {
		fmt.Println("\nCourses:")
		for _, course := range sortedKeys(u.CourseScores) {
			cs := u.CourseScores[course]
			line := fmt.Sprintf("  %-40s %6.1f/100  (%d evaluations", course, cs.AverageScore, cs.TotalEvaluations)
			if prog, ok := u.CourseProgress[course]; ok {
				line += fmt.Sprintf(", %d modules unlocked", prog.UnlockedModules)
			}
			fmt.Println(line + ")")
		}
	}

	if len(u.Evaluations) > 0 {
		fmt.Println("\nRecent evaluations:")
		evals := u.Evaluations
		if len(evals) > 10 {
			evals = evals[len(evals)-10:]
		}
		for i := len(evals) - 1; i >= 0; i-- {
			e := evals[i]
			name := e.Course
			if e.Module != "" {
				name += " / " + e.Module
			}
			fmt.Printf("  %s  %-14s %6.1f  %s\n",
				e.Date.Format("2006-01-02"), e.EvaluationType, e.Score, name)
		}
	}
	return nil
}

// ─── Catalog ───────────────────────────────────────────────────────────

func (a *app) cmdCatalog(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	course := fs.String("course", "", "show a single course's modules and topics")
	refresh := fs.Bool("refresh", false, "bypass the local cache")
	_ = fs.Parse(args)

	if err := a.requireSession(ctx, false); err != nil {
		return err
	}

	catalog, err := a.catalog.Load(ctx, *refresh)
	if err != nil {
		return err
	}

	if *course == "" {
		for _, name := range sortedKeys(catalog.Courses) {
			c := catalog.Courses[name]
			fmt.Printf("%s (%d modules)\n", name, c.TotalModules)
		}
		return nil
	}

	c, ok := catalog.Courses[*course]
	if !ok {
		return fmt.Errorf("unknown course %q", *course)
	}
	fmt.Printf("%s\n", *course)
	for _, moduleName := range sortedKeys(c.Modules) {
		m := c.Modules[moduleName]
		fmt.Printf("  %s (%d topics)\n", moduleName, m.TopicsCount)
		for _, topic := range m.Topics {
			fmt.Printf("    - %s\n", topic)
		}
	}
	return nil
}

func (a *app) cmdSelect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	course := fs.String("course", "", "course name")
	module := fs.String("module", "", "module name (optional)")
	_ = fs.Parse(args)

	if *course == "" {
		return fmt.Errorf("need -course")
	}
	if err := a.requireSession(ctx, false); err != nil {
		return err
	}

	var topics []string
	var err error
	if *module != "" {
		topics, err = a.catalog.ModuleTopics(ctx, *course, *module)
	} else {
		topics, err = a.catalog.CourseTopics(ctx, *course)
	}
	if err != nil {
		return err
	}

	sel := model.Selection{Course: *course, Module: *module, Topics: topics}
	if err := a.catalog.SetSelection(sel); err != nil {
		return err
	}
	fmt.Printf("Selected %s", *course)
	if *module != "" {
		fmt.Printf(" / %s", *module)
	}
	fmt.Printf(" (%d topics).\n", len(topics))
	return nil
}

// ─── Quiz ──────────────────────────────────────────────────────────────

func (a *app) cmdQuiz(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quiz", flag.ExitOnError)
	positioning := fs.Bool("positioning", false, "take a course positioning test")
	final := fs.Bool("final", false, "mark a positioning test as the final one")
	course := fs.String("course", "", "course name (defaults to the selection)")
	module := fs.String("module", "", "module name (defaults to the selection)")
	_ = fs.Parse(args)

	if err := a.requireSession(ctx, true); err != nil {
		return err
	}

	params := service.QuizParams{
		Course:      *course,
		Module:      *module,
		Positioning: *positioning,
		Final:       *final,
	}
	if sel := a.catalog.Selection(); sel != nil {
		if params.Course == "" {
			params.Course = sel.Course
		}
		if params.Module == "" {
			params.Module = sel.Module
		}
		if !params.Positioning {
			params.Topics = sel.Topics
		}
	}
	if !params.Positioning && *module != "" && *course != "" {
		topics, err := a.catalog.ModuleTopics(ctx, params.Course, params.Module)
		if err != nil {
			return err
		}
		params.Topics = topics
	}

	session := a.quizzes.NewSession(params)
	fmt.Println("Generating questions...")
	if err := session.Start(ctx); err != nil {
		return err
	}

	timer := service.NewQuizTimer(a.cfg.QuizDuration, func() {
		fmt.Println("\nTime is up. Press Enter to grade your answers.")
	})
	timerCtx, stopTimer := context.WithCancel(ctx)
	defer stopTimer()
	timer.Start(timerCtx)

	return a.quizLoop(ctx, session, timer)
}

func (a *app) quizLoop(ctx context.Context, session *service.QuizSession, timer *service.QuizTimer) error {
	reader := bufio.NewReader(os.Stdin)

	for {
		if timer.Remaining() == 0 && !session.Submitted() {
			return a.quizSubmit(ctx, session, timer)
		}

		printQuestion(session, timer)
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(input, " ")
		switch cmd {
		case "a", "answer":
			if err := saveAnswer(session, rest); err != nil {
				fmt.Println(err)
			}
		case "f", "flag":
			session.ToggleFlag()
		case "n", "next":
			session.Next()
		case "p", "prev":
			session.Prev()
		case "g", "go":
			i, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				fmt.Println("usage: g <question number>")
				continue
			}
			session.GoTo(i - 1)
		case "l", "list":
			printOverview(session)
		case "s", "submit":
			stats := session.Stats()
			if stats.Unattempted > 0 {
				fmt.Printf("%d questions are unanswered. Submit anyway? [y/N] ", stats.Unattempted)
				confirm, _ := reader.ReadString('\n')
				if strings.TrimSpace(strings.ToLower(confirm)) != "y" {
					continue
				}
			}
			return a.quizSubmit(ctx, session, timer)
		case "q", "quit":
			fmt.Println("Leaving without submitting; this attempt is discarded.")
			return nil
		case "h", "help":
			fmt.Println("a <option#|text>  answer | f flag | n next | p prev | g <n> go | l list | s submit | q quit")
		default:
			// Bare text on an open question is treated as the answer.
			if q, ok := session.Current(); ok && q.Type == model.QuestionOpen {
				if err := session.SaveAnswer(input); err != nil {
					fmt.Println(err)
				}
			} else {
				fmt.Println("unknown command; h for help")
			}
		}
	}
}

// saveAnswer records the learner's input against the current question. MCQ
// options are typed with the same 1-based numbers the prompt prints and
// stored as 0-based indexes; open-question text passes through untouched.
func saveAnswer(session *service.QuizSession, raw string) error {
	raw = strings.TrimSpace(raw)
	q, ok := session.Current()
	if ok && q.Type == model.QuestionMCQ {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > len(q.Options) {
			return fmt.Errorf("answer with an option number between 1 and %d", len(q.Options))
		}
		return session.SaveAnswer(strconv.Itoa(n - 1))
	}
	return session.SaveAnswer(raw)
}

func (a *app) quizSubmit(ctx context.Context, session *service.QuizSession, timer *service.QuizTimer) error {
	timer.Stop()
	fmt.Println("Submitting for grading...")
	resp, err := session.Submit(ctx)
	if err != nil {
		return err
	}
	printGrading(session, resp)
	return nil
}

func printQuestion(session *service.QuizSession, timer *service.QuizTimer) {
	q, ok := session.Current()
	if !ok {
		return
	}
	stats := session.Stats()
	remaining := timer.Remaining().Round(time.Second)

	fmt.Printf("\n[%02d:%02d] Question %d/%d", int(remaining.Minutes()), int(remaining.Seconds())%60,
		session.CurrentIndex()+1, stats.Total)
	if q.Flagged {
		fmt.Print("  (flagged)")
	}
	fmt.Printf("\n\n%s\n", q.Title)

	if q.Type == model.QuestionMCQ {
		for i, opt := range q.Options {
			marker := " "
			if q.AnswerIndex != nil && *q.AnswerIndex == i {
				marker = "*"
			}
			fmt.Printf("  %s %d. %s\n", marker, i+1, opt)
		}
		fmt.Println("\nanswer with: a <option number (1-4)>")
	} else {
		if q.Answer != "" {
			fmt.Printf("\nyour answer: %s\n", q.Answer)
		}
		fmt.Println("\ntype your answer (or h for help)")
	}
}

func printOverview(session *service.QuizSession) {
	for i, q := range session.Questions() {
		status := " "
		if q.Attempted {
			status = "x"
		}
		flag := ""
		if q.Flagged {
			flag = " !"
		}
		fmt.Printf("  [%s] %2d. %.60s%s\n", status, i+1, q.Title, flag)
	}
	stats := session.Stats()
	fmt.Printf("  %d/%d answered (%.0f%%)\n", stats.Attempted, stats.Total, stats.Progress)
}

func printGrading(session *service.QuizSession, resp *model.SubmissionResponse) {
	score := resp.GradingResult.FinalScore
	if resp.FinalScore != nil {
		score = *resp.FinalScore
	}
	fmt.Printf("\nFinal score: %.1f/100\n", score)

	for i, q := range session.Questions() {
		if q.Result == nil {
			continue
		}
		fmt.Printf("\n%d. %s\n", i+1, q.Title)
		switch q.Type {
		case model.QuestionMCQ:
			verdict := "incorrect"
			if q.Result.IsCorrect != nil && *q.Result.IsCorrect {
				verdict = "correct"
			}
			fmt.Printf("   %s", verdict)
			if q.CorrectIndex != nil {
				fmt.Printf(" (correct answer: %d. %s)", *q.CorrectIndex+1, q.Options[*q.CorrectIndex])
			}
			fmt.Println()
		case model.QuestionOpen:
			if q.Result.Grade != nil {
				fmt.Printf("   grade: %.1f\n", *q.Result.Grade)
			}
			if q.Result.Feedback != "" {
				fmt.Printf("   %s\n", q.Result.Feedback)
			}
		}
	}

	if resp.GradingResult.StudyGuide != "" {
		fmt.Printf("\nStudy guide:\n%s\n", resp.GradingResult.StudyGuide)
	}
}

// ─── Case evaluation ───────────────────────────────────────────────────

func (a *app) cmdCase(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("case", flag.ExitOnError)
	course := fs.String("course", "", "course name (defaults to the selection)")
	module := fs.String("module", "", "module name (defaults to the selection)")
	_ = fs.Parse(args)

	if err := a.requireSession(ctx, true); err != nil {
		return err
	}

	params := service.CaseParams{Course: *course, Module: *module}
	if sel := a.catalog.Selection(); sel != nil {
		if params.Course == "" {
			params.Course = sel.Course
		}
		if params.Module == "" {
			params.Module = sel.Module
		}
		params.Topics = sel.Topics
	}
	if len(params.Topics) == 0 && params.Course != "" && params.Module != "" {
		topics, err := a.catalog.ModuleTopics(ctx, params.Course, params.Module)
		if err != nil {
			return err
		}
		params.Topics = topics
	}

	session := a.cases.NewSession(params)
	fmt.Println("Generating your case study...")
	if err := session.Start(ctx); err != nil {
		return err
	}

	for _, msg := range session.Transcript() {
		fmt.Printf("\n%s\n", msg.Content)
	}

	fmt.Println("\nWrite your response; finish with a single '.' on its own line.")
	response, err := readMultiline(os.Stdin)
	if err != nil {
		return err
	}

	fmt.Println("Submitting for correction...")
	if err := session.SubmitResponse(ctx, response); err != nil {
		return err
	}

	transcript := session.Transcript()
	if len(transcript) > 0 {
		fmt.Printf("\n%s\n", transcript[len(transcript)-1].Content)
	}
	return nil
}

// readMultiline collects stdin lines until a lone "." or EOF.
func readMultiline(f *os.File) (string, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "." {
			break
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), scanner.Err()
}

// ─── Chat ──────────────────────────────────────────────────────────────

func (a *app) cmdChat(ctx context.Context) error {
	if err := a.requireSession(ctx, true); err != nil {
		return err
	}

	if _, err := a.chat.NewConversation(ctx); err != nil {
		return err
	}
	fmt.Println("Ask the learning assistant anything. /quit to leave, /new for a fresh conversation.")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\nyou> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		input := strings.TrimSpace(line)

		switch input {
		case "":
			continue
		case "/quit", "/q":
			return nil
		case "/new":
			if _, err := a.chat.NewConversation(ctx); err != nil {
				fmt.Println("could not start a conversation:", err)
			}
			continue
		}

		answer, err := a.chat.Send(ctx, input)
		if err != nil {
			fmt.Println("The assistant could not be reached. Please try again.")
			continue
		}
		if answer != nil {
			fmt.Printf("\nassistant> %s\n", answer.Response)
		}
	}
}

// ─── Helpers ───────────────────────────────────────────────────────────

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
